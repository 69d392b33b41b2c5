package types

import (
	"time"

	"github.com/google/uuid"
)

// Category buckets an activity record for filtering and retention.
type Category string

const (
	CategoryTask     Category = "task"
	CategoryUser     Category = "user"
	CategorySystem   Category = "system"
	CategorySecurity Category = "security"
)

// Severity ranks a record's significance. PruneActivity does not filter by
// it: the sink receives only a cutoff time.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActivityRecord is an immutable, append-only entry describing one
// mutation or auth event. Actions recognized by the fixed template table
// live in internal/v1/activity.
type ActivityRecord struct {
	ID          uuid.UUID  `json:"id"`
	Action      string     `json:"action"`
	Actor       uuid.UUID  `json:"actor"`
	Target      *uuid.UUID `json:"target,omitempty"`
	TargetKind  string     `json:"targetKind,omitempty"`
	Description string     `json:"description"`
	Before      any        `json:"before,omitempty"`
	After       any        `json:"after,omitempty"`
	Category    Category   `json:"category"`
	Severity    Severity   `json:"severity"`
	ConflictID  *uuid.UUID `json:"conflictId,omitempty"`
	IsResolved  bool       `json:"isResolved"`
	CreatedAt   time.Time  `json:"createdAt"`
	IP          string     `json:"ip,omitempty"`
	UserAgent   string     `json:"userAgent,omitempty"`
}
