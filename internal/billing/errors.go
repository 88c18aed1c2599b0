package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound means the shop has no subscription record. Callers must
	// have resolved the shop before reaching billing, so this is fatal for the request.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownPlan means a stored tier is not in the catalog.
	ErrUnknownPlan = errors.New("unknown plan")
)

// ValidationError is an authoring-time rejection with a user-facing message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PlanLimitError rejects creating a rule beyond the plan's ceiling.
type PlanLimitError struct {
	Tier     Tier
	MaxRules int
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("Your %s plan allows up to %d rules. Upgrade your plan to create more rules.", e.Tier, e.MaxRules)
}
