package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/app"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <identity-uuid> [identity-uuid...]",
	Short: "Deactivate every enrollment of the given identities",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid identity id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}

		a, _, err := openApp(cmd.Context(), app.WithoutQueue())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range ids {
			if err := a.Engine.Revoke(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Revoked: %s\n", id)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <identity-uuid>",
	Short: "Show the enrollments of an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid identity id %q: %w", args[0], err)
		}

		a, _, err := openApp(cmd.Context(), app.WithoutQueue())
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Engine.Enrollments(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No enrollments.")
			return nil
		}
		for _, r := range rows {
			state := "active"
			if !r.Active {
				state = "revoked"
			}
			fmt.Printf("%s  %-8s  q=%.3f  %-20s  %s  %s\n",
				r.ID, state, r.QualityScore, r.ProviderName,
				r.EnrolledAt.Format("2006-01-02 15:04:05"), r.ReferenceImageURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revokeCmd, listCmd)
}
