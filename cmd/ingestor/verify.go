package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/engine"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Verify a probe image against the gallery",
	Long: `Verify a probe image and print the decision as JSON.

Example:
  ingestor verify --filter staff --threshold 90 door.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("filter", "all", "gallery filter: all, owner, tenant, staff")
	verifyCmd.Flags().Float64("threshold", 0, "acceptance threshold 0-100 (default from config)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	filterArg, _ := cmd.Flags().GetString("filter")
	filter, err := models.ParseGalleryFilter(filterArg)
	if err != nil {
		return err
	}

	probe, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read probe: %w", err)
	}

	a, _, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	req := engine.VerifyRequest{Probe: probe, Filter: filter}
	if cmd.Flags().Changed("threshold") {
		t, _ := cmd.Flags().GetFloat64("threshold")
		req.Threshold = &t
	}

	out, err := a.Engine.Verify(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dto.NewVerifyResponse(out))
}
