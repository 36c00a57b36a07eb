package domain

import "context"

// OpportunityStore persists detected opportunities under a rolling retention
// bound. Append must upsert missing venue rows and retry once before failing.
type OpportunityStore interface {
	Append(ctx context.Context, opp ArbitrageOpportunity) error
	// PruneTo deletes all but the newest keep rows by detection time.
	PruneTo(ctx context.Context, keep int) error
	Count(ctx context.Context) (int64, error)
	Latest(ctx context.Context, n int) ([]ArbitrageOpportunity, error)
}
