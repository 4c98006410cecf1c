// Package pipeline drives campaigns through the stage sequence: it builds
// execution contexts from validated handoff artifacts, finalizes stage
// output into the next artifact plus a phase transition, and runs the
// fail-fast stage loop.
package pipeline

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/rtuzov/emailmakers-sub004/internal/handoff"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// QualityThresholds are the acceptance criteria threaded to every stage.
// The pipeline treats them as opaque; the quality stage applies them.
type QualityThresholds struct {
	MinScore        int
	RequireApproval bool
}

// ExecutionContext is everything one stage needs to run. It is assembled
// fresh for each stage invocation from the campaign metadata and the
// validated incoming artifact, never cached across stages.
type ExecutionContext struct {
	CorrelationID string
	Campaign      campaign.Ref
	Topic         string
	Destination   string

	// WorkflowPhase is the stage being executed.
	WorkflowPhase campaign.Phase

	// Incoming is the validated artifact from the previous stage, nil for
	// the first stage.
	Incoming *campaign.HandoffArtifact

	// DataFlow maps the relative data file paths inherited from the
	// previous stage to their absolute locations under the campaign root.
	DataFlow map[string]string

	Thresholds QualityThresholds
}

// ContextBuilder assembles execution contexts. Before handing an artifact to
// the next stage it re-validates the artifact against its boundary schema,
// so a stage never starts from inputs that have rotted on disk since the
// artifact was written.
type ContextBuilder struct {
	store      *campaign.Store
	thresholds QualityThresholds
}

// NewContextBuilder creates a builder over the given store.
func NewContextBuilder(store *campaign.Store, thresholds QualityThresholds) *ContextBuilder {
	return &ContextBuilder{store: store, thresholds: thresholds}
}

// previousBoundary returns the boundary whose artifact feeds the stage, or
// ok=false for the first stage, which starts from campaign metadata alone.
func previousBoundary(stage campaign.Phase) (campaign.Boundary, bool) {
	stages := campaign.StagePhases()
	for i, s := range stages {
		if s == stage {
			if i == 0 {
				return campaign.Boundary{}, false
			}
			return campaign.Boundary{From: stages[i-1], To: stage}, true
		}
	}
	return campaign.Boundary{}, false
}

// Build assembles the execution context for running stage on the campaign at
// root. The incoming artifact is loaded and re-validated; a missing data
// file or schema violation aborts the build with a HandoffValidationError.
func (b *ContextBuilder) Build(ctx context.Context, root string, stage campaign.Phase) (*ExecutionContext, error) {
	c, err := b.store.LoadMetadata(ctx, root)
	if err != nil {
		return nil, err
	}

	ec := &ExecutionContext{
		CorrelationID: c.CorrelationID,
		Campaign:      c.Ref(),
		Topic:         c.Topic,
		Destination:   c.Destination,
		WorkflowPhase: stage,
		DataFlow:      map[string]string{},
		Thresholds:    b.thresholds,
	}

	boundary, ok := previousBoundary(stage)
	if !ok {
		return ec, nil
	}

	artifact, err := b.store.LoadArtifact(ctx, root, boundary.From, boundary.To)
	if err != nil {
		return nil, err
	}

	// The correlation id is fixed at creation; an artifact carrying a
	// different one belongs to another campaign run and means the root has
	// been corrupted or mixed.
	if artifact.CorrelationID != c.CorrelationID {
		return nil, campaign.NewConfigurationError("artifact correlation id does not match campaign").
			WithContext("boundary", boundary.String()).
			WithContext("campaign_correlation_id", c.CorrelationID).
			WithContext("artifact_correlation_id", artifact.CorrelationID)
	}

	schema, err := handoff.SchemaFor(boundary)
	if err != nil {
		return nil, err
	}

	result := handoff.NewValidator(b.store.Policy()).Validate(ctx, artifact, schema, root)
	if !result.IsValid {
		return nil, campaign.NewHandoffValidationError("incoming artifact for %s failed validation: %s",
			boundary, result.ErrorSummary()).
			WithContext("boundary", boundary.String()).
			WithContext("score", strconv.Itoa(result.Score))
	}

	ec.Incoming = artifact
	for _, rel := range artifact.DataFiles {
		ec.DataFlow[rel] = filepath.Join(root, rel)
	}
	for _, rel := range artifact.KeyOutputs {
		if _, seen := ec.DataFlow[rel]; !seen {
			ec.DataFlow[rel] = filepath.Join(root, rel)
		}
	}

	return ec, nil
}
