// Package quota meters free-tier usage per caller and feature, with daily
// limits persisted across restarts. Callers bringing their own provider
// keys bypass the gate entirely; that decision is made by the HTTP layer.
package quota

import (
	"context"
	"fmt"
)

// Feature tags for metered product surfaces.
const (
	FeatureTutor             = "tutor"
	FeatureQuickChat         = "quickChat"
	FeatureLessonChat        = "lessonChat"
	FeatureLessonExplanation = "lessonExplanation"
	FeatureTutorQuestion     = "tutorQuestion"
)

// DefaultFreeLimits is the per-day request allowance for each metered
// feature on the free tier.
var DefaultFreeLimits = map[string]int{
	FeatureTutor:             14,
	FeatureQuickChat:         8,
	FeatureLessonChat:        14,
	FeatureLessonExplanation: 5,
	FeatureTutorQuestion:     3,
}

// Gate is consulted before serving a completion and notified after a
// successful one. Only successes consume quota.
type Gate interface {
	BeforeRequest(ctx context.Context, callerID, feature string) error
	AfterSuccess(ctx context.Context, callerID, feature string) error
}

// ExceededError reports a caller over their daily allowance for a feature.
type ExceededError struct {
	Feature string
	Limit   int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily free limit of %d reached for %s, upgrade for unlimited access", e.Limit, e.Feature)
}

// NopGate allows everything. Used when no quota database is configured.
type NopGate struct{}

func (NopGate) BeforeRequest(ctx context.Context, callerID, feature string) error { return nil }
func (NopGate) AfterSuccess(ctx context.Context, callerID, feature string) error  { return nil }
