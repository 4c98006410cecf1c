package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/rtuzov/emailmakers-sub004/internal/events"
	"github.com/rtuzov/emailmakers-sub004/internal/handoff"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// StageOutput is what a stage hands back for finalization.
type StageOutput struct {
	Summary           string
	KeyOutputs        []string
	StructuredContext json.RawMessage
	DataFiles         []string
}

// Finalizer turns stage output into a committed transition: artifact
// validated and written, metadata advanced to the next phase. Validation
// happens before anything is persisted, so a rejected output leaves no
// half-written artifact behind.
type Finalizer struct {
	store *campaign.Store
	pub   events.Publisher
}

// NewFinalizer creates a finalizer. A nil publisher disables event
// publishing.
func NewFinalizer(store *campaign.Store, pub events.Publisher) *Finalizer {
	return &Finalizer{store: store, pub: pub}
}

// Finalize commits the output of stage on the campaign at root. On success
// the campaign phase advances to the stage after it and the handoff artifact
// for the crossed boundary exists on disk. On validation failure the
// campaign is finalized into failed and the validation error is returned.
func (f *Finalizer) Finalize(ctx context.Context, root string, stage campaign.Phase, out *StageOutput) (*campaign.Campaign, error) {
	c, err := f.store.LoadMetadata(ctx, root)
	if err != nil {
		return nil, err
	}

	if c.Phase.Terminal() {
		return nil, campaign.NewConfigurationError("campaign %s is already terminal (%s)", c.ID, c.Phase)
	}

	to, err := stage.Next()
	if err != nil {
		return nil, campaign.NewConfigurationError("cannot finalize stage %q", stage).WithCause(err)
	}

	artifact := &campaign.HandoffArtifact{
		FromStage:         string(stage),
		ToStage:           string(to),
		CampaignID:        c.ID,
		CampaignRoot:      c.RootPath,
		CorrelationID:     c.CorrelationID,
		Summary:           out.Summary,
		KeyOutputs:        out.KeyOutputs,
		StructuredContext: out.StructuredContext,
		DataFiles:         out.DataFiles,
		CreatedAt:         time.Now().UTC(),
	}

	boundary := campaign.Boundary{From: stage, To: to}
	schema, err := handoff.SchemaFor(boundary)
	if err != nil {
		return nil, err
	}

	result := handoff.NewValidator(f.store.Policy()).Validate(ctx, artifact, schema, root)
	for _, w := range result.Warnings {
		log.Printf("[Finalizer] [WARN] campaign %s %s: %s", c.ID, boundary, w)
	}
	if !result.IsValid {
		verr := campaign.NewHandoffValidationError("stage %s output failed validation: %s",
			stage, result.ErrorSummary()).
			WithContext("boundary", boundary.String())

		if _, ferr := f.store.MarkFailed(ctx, root, string(stage), verr); ferr != nil {
			log.Printf("[Finalizer] [WARN] failed to record campaign failure: %v", ferr)
		}
		f.publish(ctx, events.Event{
			Type:          events.TypeCampaignFailed,
			CampaignID:    c.ID,
			CorrelationID: c.CorrelationID,
			Phase:         campaign.PhaseFailed,
			Stage:         string(stage),
			Message:       verr.Error(),
		})
		return nil, verr
	}

	if err := f.store.WriteArtifact(ctx, artifact); err != nil {
		return nil, err
	}

	c.CompletedStages = append(c.CompletedStages, string(stage))
	c.Phase = to
	if to == campaign.PhaseCompleted {
		c.Status = campaign.StatusCompleted
	}

	if err := f.store.SaveMetadata(ctx, c); err != nil {
		return nil, err
	}

	log.Printf("[Finalizer] campaign %s: %s complete, phase now %s (score %d)",
		c.ID, stage, c.Phase, result.Score)

	eventType := events.TypeStageCompleted
	if to == campaign.PhaseCompleted {
		eventType = events.TypeCampaignCompleted
	}
	f.publish(ctx, events.Event{
		Type:          eventType,
		CampaignID:    c.ID,
		CorrelationID: c.CorrelationID,
		Phase:         c.Phase,
		Stage:         string(stage),
	})

	return c, nil
}

func (f *Finalizer) publish(ctx context.Context, ev events.Event) {
	events.PublishBestEffort(ctx, f.pub, ev)
}
