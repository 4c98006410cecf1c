package campaign

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase identifies one step of the campaign pipeline. Phases advance
// strictly forward; the only backward-reachable state is PhaseFailed.
type Phase string

const (
	// PhaseInitialized is the state of a freshly created campaign root.
	PhaseInitialized Phase = "initialized"

	// PhaseDataCollection gathers the brief, pricing and asset references.
	PhaseDataCollection Phase = "data_collection"

	// PhaseContent produces subject line, preheader and body copy.
	PhaseContent Phase = "content"

	// PhaseDesign renders the copy into HTML and plain-text templates.
	PhaseDesign Phase = "design"

	// PhaseQuality checks the rendered templates against thresholds.
	PhaseQuality Phase = "quality"

	// PhaseDelivery packages the approved templates for handover.
	PhaseDelivery Phase = "delivery"

	// PhaseCompleted marks a campaign that finished every stage.
	PhaseCompleted Phase = "completed"

	// PhaseFailed is terminal and reachable from any non-terminal phase.
	PhaseFailed Phase = "failed"
)

// phaseOrder is the forward progression of the pipeline.
var phaseOrder = []Phase{
	PhaseInitialized,
	PhaseDataCollection,
	PhaseContent,
	PhaseDesign,
	PhaseQuality,
	PhaseDelivery,
	PhaseCompleted,
}

// Validate checks if the Phase is a valid enum value.
func (p Phase) Validate() error {
	switch p {
	case PhaseInitialized, PhaseDataCollection, PhaseContent, PhaseDesign,
		PhaseQuality, PhaseDelivery, PhaseCompleted, PhaseFailed:
		return nil
	default:
		return fmt.Errorf("unknown phase: %q", p)
	}
}

// Terminal reports whether no further transitions are allowed from p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Next returns the phase that follows p in the pipeline. Returns an error
// for terminal phases and unknown values.
func (p Phase) Next() (Phase, error) {
	for i, candidate := range phaseOrder {
		if candidate == p {
			if i == len(phaseOrder)-1 {
				return "", fmt.Errorf("phase %q is terminal", p)
			}
			return phaseOrder[i+1], nil
		}
	}
	return "", fmt.Errorf("unknown phase: %q", p)
}

// StagePhases returns the working stages in execution order, excluding the
// bookkeeping states (initialized, completed, failed).
func StagePhases() []Phase {
	return []Phase{PhaseDataCollection, PhaseContent, PhaseDesign, PhaseQuality, PhaseDelivery}
}

// Status is the campaign lifecycle summary, orthogonal to Phase.
type Status string

const (
	// StatusRunning indicates the pipeline may still make progress.
	StatusRunning Status = "running"

	// StatusCompleted indicates every stage finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the campaign was finalized into failure.
	StatusFailed Status = "failed"
)

// Validate checks if the Status is a valid enum value.
func (s Status) Validate() error {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown status: %q", s)
	}
}

// StageError is one entry of the campaign error log.
type StageError struct {
	Stage     string    `json:"stage"`      // Phase that was executing when the error occurred
	Kind      string    `json:"error_kind"` // Taxonomy kind (ErrorKind)
	Message   string    `json:"message"`    // Human-readable description
	Timestamp time.Time `json:"timestamp"`  // UTC time the error was recorded
}

// Campaign is the persisted record of one generation run. It lives as
// campaign-metadata.json on the campaign root, is mutated only by the stage
// finalizer, and is always re-read from storage rather than held in memory
// across operations.
type Campaign struct {
	ID              string       `json:"id"`               // UUID - unique identifier for this campaign
	CorrelationID   string       `json:"correlation_id"`   // UUID - fixed at creation, threaded through every stage
	RootPath        string       `json:"root_path"`        // Absolute campaign root directory
	Phase           Phase        `json:"phase"`            // Current pipeline phase
	Status          Status       `json:"status"`           // running | completed | failed
	Topic           string       `json:"topic"`            // Campaign topic from the brief
	Destination     string       `json:"destination"`      // Destination audience/list from the brief
	CompletedStages []string     `json:"completed_stages"` // Stage names in completion order
	Errors          []StageError `json:"errors"`           // Append-only error log
	CreatedAt       time.Time    `json:"created_at"`       // UTC creation time
	UpdatedAt       time.Time    `json:"updated_at"`       // UTC time of last metadata write
}

// Validate checks if the Campaign has valid field values.
func (c *Campaign) Validate() error {
	if !isValidUUID(c.ID) {
		return fmt.Errorf("invalid campaign ID: not a valid UUID")
	}

	if !isValidUUID(c.CorrelationID) {
		return fmt.Errorf("invalid correlation ID: not a valid UUID")
	}

	if c.RootPath == "" {
		return fmt.Errorf("root path cannot be empty")
	}

	if err := c.Phase.Validate(); err != nil {
		return fmt.Errorf("invalid phase: %w", err)
	}

	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	return nil
}

// Ref is the minimal campaign reference threaded through execution contexts
// and handoff artifacts.
type Ref struct {
	ID       string `json:"id"`
	RootPath string `json:"root_path"`
}

// Ref returns the campaign's reference.
func (c *Campaign) Ref() Ref {
	return Ref{ID: c.ID, RootPath: c.RootPath}
}

// HandoffArtifact is the unit of inter-stage communication. Exactly one
// artifact exists per (from_stage, to_stage) boundary per campaign; it is
// immutable once validated and fully regenerated rather than patched.
type HandoffArtifact struct {
	FromStage         string          `json:"from_stage"`
	ToStage           string          `json:"to_stage"`
	CampaignID        string          `json:"campaign_id"`
	CampaignRoot      string          `json:"campaign_root"`
	CorrelationID     string          `json:"correlation_id"`
	Summary           string          `json:"summary"`
	KeyOutputs        []string        `json:"key_outputs"`        // References to produced output files
	StructuredContext json.RawMessage `json:"structured_context"` // Boundary-specific payload, shape owned by the handoff schema
	DataFiles         []string        `json:"data_files"`         // Relative paths that must exist under the campaign root
	CreatedAt         time.Time       `json:"created_at"`
}

// Validate checks if the HandoffArtifact has valid field values.
// Schema-level validation of the structured context is performed separately
// by the handoff validator.
func (a *HandoffArtifact) Validate() error {
	if a.FromStage == "" {
		return fmt.Errorf("from_stage cannot be empty")
	}

	if a.ToStage == "" {
		return fmt.Errorf("to_stage cannot be empty")
	}

	if a.FromStage == a.ToStage {
		return fmt.Errorf("from_stage and to_stage must differ, both are %q", a.FromStage)
	}

	if !isValidUUID(a.CampaignID) {
		return fmt.Errorf("invalid campaign ID: not a valid UUID")
	}

	if a.CampaignRoot == "" {
		return fmt.Errorf("campaign root cannot be empty")
	}

	if !isValidUUID(a.CorrelationID) {
		return fmt.Errorf("invalid correlation ID: not a valid UUID")
	}

	if len(a.StructuredContext) == 0 {
		return fmt.Errorf("structured context cannot be empty")
	}

	return nil
}

// Boundary returns the (from, to) pair this artifact crosses.
func (a *HandoffArtifact) Boundary() Boundary {
	return Boundary{From: Phase(a.FromStage), To: Phase(a.ToStage)}
}

// Boundary identifies one stage transition of the pipeline.
type Boundary struct {
	From Phase
	To   Phase
}

// String renders the boundary as "from->to".
func (b Boundary) String() string {
	return fmt.Sprintf("%s->%s", b.From, b.To)
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
