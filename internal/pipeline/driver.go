package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/rtuzov/emailmakers-sub004/internal/events"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// StageFunc runs one stage against its execution context and returns the
// output to be finalized. The context carries the per-stage deadline;
// a stage that cannot finish returns an error rather than partial output.
type StageFunc func(ctx context.Context, ec *ExecutionContext) (*StageOutput, error)

// Registry maps each working stage to its implementation.
type Registry map[campaign.Phase]StageFunc

// Driver runs the fail-fast stage loop: build context, run stage, finalize,
// repeat until the campaign reaches a terminal phase. Any stage error
// finalizes the campaign into failed; there is no partial-success state.
type Driver struct {
	store        *campaign.Store
	builder      *ContextBuilder
	finalizer    *Finalizer
	stages       Registry
	pub          events.Publisher
	stageTimeout time.Duration
}

// NewDriver wires a driver. A nil publisher disables event publishing;
// a zero stageTimeout disables per-stage deadlines.
func NewDriver(store *campaign.Store, stages Registry, thresholds QualityThresholds, pub events.Publisher, stageTimeout time.Duration) *Driver {
	return &Driver{
		store:        store,
		builder:      NewContextBuilder(store, thresholds),
		finalizer:    NewFinalizer(store, pub),
		stages:       stages,
		pub:          pub,
		stageTimeout: stageTimeout,
	}
}

// stageFor maps the persisted phase to the stage that should run next.
// A freshly initialized campaign runs the first working stage.
func stageFor(phase campaign.Phase) (campaign.Phase, bool) {
	if phase == campaign.PhaseInitialized {
		return campaign.PhaseDataCollection, true
	}
	for _, s := range campaign.StagePhases() {
		if s == phase {
			return s, true
		}
	}
	return "", false
}

// Run advances the campaign at root until it completes, fails, or ctx is
// cancelled. Running an already-terminal campaign returns its state
// unchanged, so Run is safe to re-invoke after a crash: the persisted phase
// tells it exactly where to resume.
func (d *Driver) Run(ctx context.Context, root string) (*campaign.Campaign, error) {
	for {
		c, err := d.store.LoadMetadata(ctx, root)
		if err != nil {
			return nil, err
		}

		if c.Phase.Terminal() {
			return c, nil
		}

		stage, ok := stageFor(c.Phase)
		if !ok {
			return nil, campaign.NewConfigurationError("campaign %s has no runnable stage for phase %q", c.ID, c.Phase)
		}

		if err := ctx.Err(); err != nil {
			return c, err
		}

		if _, err := d.RunStage(ctx, root, stage); err != nil {
			failed, lerr := d.store.LoadMetadata(ctx, root)
			if lerr != nil {
				return nil, err
			}
			return failed, err
		}
	}
}

// RunStage executes exactly one stage on the campaign at root. Any error
// along the way (context build, stage execution, finalization) marks the
// campaign failed before the error is returned.
func (d *Driver) RunStage(ctx context.Context, root string, stage campaign.Phase) (*campaign.Campaign, error) {
	fn, ok := d.stages[stage]
	if !ok {
		err := campaign.NewConfigurationError("no implementation registered for stage %q", stage)
		d.fail(ctx, root, stage, err)
		return nil, err
	}

	ec, err := d.builder.Build(ctx, root, stage)
	if err != nil {
		d.fail(ctx, root, stage, err)
		return nil, err
	}

	log.Printf("[Driver] campaign %s: running stage %s (correlation %s)",
		ec.Campaign.ID, stage, ec.CorrelationID)

	stageCtx := ctx
	if d.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, d.stageTimeout)
		defer cancel()
	}

	out, err := fn(stageCtx, ec)
	if err != nil {
		d.fail(ctx, root, stage, err)
		return nil, err
	}

	c, err := d.finalizer.Finalize(ctx, root, stage, out)
	if err != nil {
		// Validation failures are already recorded by the finalizer;
		// storage failures are recorded here.
		if !campaign.IsKind(err, campaign.KindHandoffValidation) {
			d.fail(ctx, root, stage, err)
		}
		return nil, err
	}

	return c, nil
}

// fail finalizes the campaign into the terminal failed state and publishes
// the failure event. Best effort: recording a failure must not mask the
// original error.
func (d *Driver) fail(ctx context.Context, root string, stage campaign.Phase, cause error) {
	c, err := d.store.MarkFailed(ctx, root, string(stage), cause)
	if err != nil {
		log.Printf("[Driver] [WARN] failed to record campaign failure at %s: %v", root, err)
		return
	}

	events.PublishBestEffort(ctx, d.pub, events.Event{
		Type:          events.TypeCampaignFailed,
		CampaignID:    c.ID,
		CorrelationID: c.CorrelationID,
		Phase:         campaign.PhaseFailed,
		Stage:         string(stage),
		Message:       cause.Error(),
	})
}
