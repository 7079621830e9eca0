package moderation

import (
	"context"

	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/model"
)

// FraudService records anti-fraud strikes against a submitter. A
// duplicate submission earns exactly one strike.
type FraudService interface {
	IncrementStrikes(ctx context.Context, submitterID, reason string) error
}

// NotificationService informs the submitter of a rejection. Approvals
// and manual-review holds are not notified; the listing flow surfaces
// those states itself.
type NotificationService interface {
	NotifyRejection(ctx context.Context, decision model.ModerationDecision) error
}

// LogFraudService is the default FraudService: it records strikes to the
// log only. Deployments wire a real counter service here.
type LogFraudService struct{}

func (LogFraudService) IncrementStrikes(_ context.Context, submitterID, reason string) error {
	zap.L().Warn("fraud strike",
		zap.String("submitter_id", submitterID),
		zap.String("reason", reason),
	)
	return nil
}

// LogNotificationService is the default NotificationService: it logs the
// rejection instead of delivering it.
type LogNotificationService struct{}

func (LogNotificationService) NotifyRejection(_ context.Context, decision model.ModerationDecision) error {
	title := "Listing rejected"
	if decision.DuplicateOfID != "" || decision.Reason == duplicateReason {
		title = "Duplicate listing rejected"
	}
	zap.L().Info("rejection notification",
		zap.String("title", title),
		zap.String("listing_id", decision.ListingID),
		zap.String("submitter_id", decision.SubmitterID),
		zap.String("reason", decision.Reason),
	)
	return nil
}
