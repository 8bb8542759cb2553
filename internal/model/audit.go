package model

import "github.com/google/uuid"

// AuditClass classifies one observed relic item.
type AuditClass string

const (
	// AuditReal is the first sighting of a tracked id.
	AuditReal AuditClass = "real"
	// AuditUntagged is a relic item with no identity tag.
	AuditUntagged AuditClass = "untagged"
	// AuditDuplicate is a further sighting of an id already seen in the scan.
	AuditDuplicate AuditClass = "duplicate"
	// AuditUnknown is tagged with an id that is not tracked.
	AuditUnknown AuditClass = "unknown"
)

type AuditFinding struct {
	Observation
	Class AuditClass `json:"class"`
}

// AuditReport is the result of one world scan.
type AuditReport struct {
	Findings  []AuditFinding `json:"findings"`
	Real      int            `json:"real"`
	Untagged  int            `json:"untagged"`
	Duplicate int            `json:"duplicate"`
	Unknown   int            `json:"unknown"`
	// Missing lists tracked ids the scan did not see.
	Missing []uuid.UUID `json:"missing"`
}

// TimerOp names an administrative timer adjustment.
type TimerOp string

const (
	TimerAdd    TimerOp = "add"
	TimerRemove TimerOp = "remove"
	TimerReset  TimerOp = "reset"
)
