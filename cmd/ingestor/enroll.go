package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/app"
	"github.com/your-org/facegate/internal/ingest"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Enroll every identity found in a photo directory",
	Long: `Enroll photos from a directory tree with one sub-directory per identity,
named by the identity UUID. An optional identity.yaml in each sub-directory
sets display_name and category for identities that are not registered yet.

Example:
  ingestor enroll ./photos
  ingestor enroll -w 4 ./photos`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().IntP("workers", "w", 2, "identities enrolled concurrently")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")

	batches, skipped, err := ingest.Scan(args[0])
	if err != nil {
		return err
	}
	for _, name := range skipped {
		fmt.Printf("Skipped: %s (not an identity directory or no photos)\n", name)
	}
	if len(batches) == 0 {
		fmt.Println("No identities with photos found.")
		return nil
	}

	ctx := cmd.Context()
	a, log, err := openApp(ctx, app.WithoutQueue())
	if err != nil {
		return err
	}
	defer a.Close()

	photos := 0
	for _, b := range batches {
		photos += len(b.Files)
	}
	fmt.Printf("Found %d identities with %d photo(s), provider %s\n\n", len(batches), photos, a.Provider.Name())

	ensure := func(ctx context.Context, b ingest.Batch) error {
		_, err := a.EnsureIdentity(ctx, b.IdentityID, b.DisplayName, b.Category)
		return err
	}
	manager := ingest.NewManager(a.Engine, ensure, workers, a.Config.Engine.MaxImagesPerEnrollment, log)

	bar := progressbar.NewOptions(len(batches),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("identities"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	results := manager.Run(ctx, batches, func(ingest.Result) { _ = bar.Add(1) })
	fmt.Println()

	var enrolled, failed, broken int
	for _, r := range results {
		enrolled += r.Enrolled
		failed += r.Failed
		if r.Err != nil {
			broken++
			fmt.Printf("Failed: %s: %v\n", r.Batch.IdentityID, r.Err)
		}
		for _, dup := range r.PossibleDuplicates {
			fmt.Printf("Warning: %s resembles already enrolled identity %s\n", r.Batch.IdentityID, dup)
		}
	}
	fmt.Printf("\nEnrolled %d photo(s), rejected %d, %d identities failed\n", enrolled, failed, broken)

	if broken == len(results) {
		return errors.New("no identity was enrolled")
	}
	return nil
}
