package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/store"
)

var (
	fpSubmitterID string
	fpLimit       int
	fpOlderDays   int
)

var fingerprintsCmd = &cobra.Command{
	Use:   "fingerprints",
	Short: "Inspect and maintain vehicle fingerprints",
}

var fingerprintsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListFingerprints(ctx, store.FingerprintFilter{
			SubmitterID: fpSubmitterID,
			Limit:       fpLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list fingerprints")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, rec := range recs {
			if err := enc.Encode(rec); err != nil {
				return eris.Wrap(err, "encode fingerprint")
			}
		}
		zap.L().Info("fingerprints listed", zap.Int("count", len(recs)))
		return nil
	},
}

var fingerprintsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete fingerprints older than the duplicate window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		days := fpOlderDays
		if days <= 0 {
			days = cfg.Moderation.FingerprintWindowDays
		}

		deleted, err := st.DeleteExpiredFingerprints(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return eris.Wrap(err, "prune fingerprints")
		}

		expired, err := st.DeleteExpiredResponses(ctx)
		if err != nil {
			return eris.Wrap(err, "prune response cache")
		}

		zap.L().Info("prune complete",
			zap.Int("fingerprints_deleted", deleted),
			zap.Int("cached_responses_deleted", expired),
			zap.Int("older_than_days", days),
		)
		return nil
	},
}

func init() {
	fingerprintsListCmd.Flags().StringVar(&fpSubmitterID, "submitter", "", "filter by submitter id")
	fingerprintsListCmd.Flags().IntVar(&fpLimit, "limit", 50, "maximum records to list")
	fingerprintsPruneCmd.Flags().IntVar(&fpOlderDays, "older-than-days", 0, "prune records older than this many days (default: configured window)")
	fingerprintsCmd.AddCommand(fingerprintsListCmd, fingerprintsPruneCmd)
	rootCmd.AddCommand(fingerprintsCmd)
}
