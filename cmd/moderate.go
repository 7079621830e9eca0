package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var moderateCmd = &cobra.Command{
	Use:   "moderate <submission.json>",
	Short: "Moderate one listing submission from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read submission file")
		}

		var req submissionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return eris.Wrap(err, "decode submission file")
		}

		sub, err := req.toSubmission()
		if err != nil {
			return err
		}

		env, err := initModeration(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		decision, err := env.Pipeline.Moderate(ctx, sub)
		if err != nil {
			return err
		}

		zap.L().Info("moderation complete",
			zap.String("listing_id", decision.ListingID),
			zap.String("status", string(decision.Status)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(decision), "encode decision")
	},
}

func init() {
	rootCmd.AddCommand(moderateCmd)
}
