package spec

import "time"

// Status is the lifecycle state shared by Operations and Steps.
//
// The state machine is:
//
//	pending → processing → applied | failed
//
// There is no automatic transition out of a terminal state. Retrying a
// failed Step requires an explicit reset back to pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
)

// ValidStatuses defines the allowed status values.
var ValidStatuses = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusApplied:    true,
	StatusFailed:     true,
}

// CanTransition reports whether the status state machine permits moving
// from one status to another. Terminal states (applied, failed) have no
// outgoing transitions except the explicit failed → pending retry reset.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusApplied || to == StatusFailed
	case StatusFailed:
		return to == StatusPending // explicit retry reset only
	default:
		return false
	}
}

// StepKind identifies the handler that executes a Step.
type StepKind string

const (
	KindCreateModel     StepKind = "create_model"
	KindCreatePage      StepKind = "create_page"
	KindCreateComponent StepKind = "create_component"
	KindSetPermissions  StepKind = "set_permissions"

	// KindGeneric is the fallback for descriptors with no type field.
	// The executor rejects it; a malformed descriptor fails its own
	// step without blocking the rest of the operation.
	KindGeneric StepKind = "generic"
)

// ValidStepKinds defines the step kinds the executor can dispatch.
var ValidStepKinds = map[StepKind]bool{
	KindCreateModel:     true,
	KindCreatePage:      true,
	KindCreateComponent: true,
	KindSetPermissions:  true,
}

// EntryType partitions the specification store.
type EntryType string

const (
	EntryDataModel  EntryType = "data_model"
	EntryPage       EntryType = "page"
	EntryComponent  EntryType = "component"
	EntryPermission EntryType = "permission_ruleset"
	EntrySchema     EntryType = "schema"
)

// KnownEntryTypes lists the entry types the render layer aggregates.
// Unknown entry types are ignored by readers, never errors.
var KnownEntryTypes = map[EntryType]bool{
	EntryDataModel:  true,
	EntryPage:       true,
	EntryComponent:  true,
	EntryPermission: true,
	EntrySchema:     true,
}

// RawStep is one untyped step descriptor as submitted by the intent
// producer. Field names are duck-typed and alias-heavy; DecodeStep in
// payload.go normalizes them into a typed variant.
type RawStep map[string]any

// Operation is a batch of declarative mutation intents submitted
// together. The payload (intent, raw steps) is immutable after
// creation; only status, error message, and applied_at change.
type Operation struct {
	ID           string     `json:"id"`
	AppID        string     `json:"app_id"`
	Intent       string     `json:"intent"`
	RawSteps     []RawStep  `json:"raw_steps"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	AppliedAt    *time.Time `json:"applied_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Step is one atomic unit of an Operation. The row stores only the
// kind and target; the full payload is re-read from the owning
// Operation's raw descriptor at position Index when the step runs.
type Step struct {
	ID           string    `json:"id"`
	OperationID  string    `json:"operation_id"`
	AppID        string    `json:"app_id"`
	Index        int       `json:"index"`
	Kind         StepKind  `json:"kind"`
	Target       string    `json:"target"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SpecEntry is one keyed document of desired application state.
// Identity is (AppID, EntryType, Key), unique.
type SpecEntry struct {
	AppID     string         `json:"app_id"`
	EntryType EntryType      `json:"entry_type"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VersionSnapshot is an immutable full capture of the specification
// store for one app, taken after a successfully applied Operation.
// VersionNumber is sequential and gap-free per app.
type VersionSnapshot struct {
	AppID         string    `json:"app_id"`
	VersionNumber int       `json:"version_number"`
	OperationID   string    `json:"operation_id"`
	Snapshot      string    `json:"snapshot"` // canonical JSON, partitioned by entry type
	CreatedAt     time.Time `json:"created_at"`
}
