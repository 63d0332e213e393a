package planner

import (
	"errors"
	"fmt"
)

// ErrUnknownChallenge is returned for challenge ids outside the configured set.
var ErrUnknownChallenge = errors.New("planner: unknown challenge")

// NoPathFoundError means no engine produced an acceptable itinerary for the
// challenge on the current network view.
type NoPathFoundError struct {
	ChallengeID string
	Reason      string
	// ResourceLimit marks failures where the fallback ran out of budget
	// rather than exhausting the reachable state space.
	ResourceLimit bool
}

func (e *NoPathFoundError) Error() string {
	return fmt.Sprintf("no itinerary found for %s: %s", e.ChallengeID, e.Reason)
}

// ConfigValidationError reports a rejected challenge or planner setting.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}
