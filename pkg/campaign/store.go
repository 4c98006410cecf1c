package campaign

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store provides campaign-root-scoped persistence for campaign metadata and
// handoff artifacts. All writes are atomic and all reads/writes retry under
// the store's policy. The store holds no campaign state in memory: metadata
// is re-read from disk for every mutation so the file remains the single
// source of truth across restarts.
type Store struct {
	policy RetryPolicy
}

// NewStore creates a store using the given retry policy for every operation.
func NewStore(policy RetryPolicy) *Store {
	return &Store{policy: policy}
}

// CreateParams carries the brief fields recorded on a new campaign.
type CreateParams struct {
	Topic       string
	Destination string
}

// Create scaffolds a campaign root: the data/, templates/ and docs/
// directories plus the initial metadata record in phase "initialized".
// The campaign and correlation identifiers are minted here; the correlation
// id is immutable for the life of the campaign.
func (s *Store) Create(ctx context.Context, root string, params CreateParams) (*Campaign, error) {
	if params.Topic == "" {
		return nil, NewConfigurationError("campaign topic is required")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, NewPathResolutionError("failed to resolve campaign root").
			WithContext("path", root).
			WithCause(err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, NewFileOperationError("failed to create campaign root").
			Fatal().
			WithContext("path", absRoot).
			WithCause(err)
	}

	for _, dir := range SubDirs() {
		if err := os.MkdirAll(filepath.Join(absRoot, dir), 0755); err != nil {
			return nil, NewFileOperationError("failed to create campaign directory").
				Fatal().
				WithContext("path", filepath.Join(absRoot, dir)).
				WithCause(err)
		}
	}

	now := time.Now().UTC()
	c := &Campaign{
		ID:              uuid.New().String(),
		CorrelationID:   uuid.New().String(),
		RootPath:        absRoot,
		Phase:           PhaseInitialized,
		Status:          StatusRunning,
		Topic:           params.Topic,
		Destination:     params.Destination,
		CompletedStages: []string{},
		Errors:          []StageError{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.SaveMetadata(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadMetadata reads and validates the campaign record from root.
func (s *Store) LoadMetadata(ctx context.Context, root string) (*Campaign, error) {
	var c Campaign
	if err := ReadStructured(ctx, MetadataPath(root), s.policy, &c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		// The correlation id is fixed at creation. A record that still
		// identifies its campaign but lost the correlation id is an identity
		// failure, not a parse failure.
		if isValidUUID(c.ID) && !isValidUUID(c.CorrelationID) {
			return nil, NewConfigurationError("campaign correlation id cannot be recovered from metadata").
				WithContext("path", MetadataPath(root)).
				WithContext("campaign_id", c.ID)
		}
		return nil, NewDataExtractionError("campaign metadata is invalid").
			WithContext("path", MetadataPath(root)).
			WithCause(err)
	}

	// Ensure empty slices instead of nil for consistency
	if c.CompletedStages == nil {
		c.CompletedStages = []string{}
	}
	if c.Errors == nil {
		c.Errors = []StageError{}
	}

	return &c, nil
}

// SaveMetadata validates and atomically persists the campaign record,
// refreshing UpdatedAt.
func (s *Store) SaveMetadata(ctx context.Context, c *Campaign) error {
	if err := c.Validate(); err != nil {
		return NewDataExtractionError("refusing to persist invalid campaign metadata").
			WithContext("campaign_id", c.ID).
			WithCause(err)
	}

	c.UpdatedAt = time.Now().UTC()
	return WriteStructuredAtomic(ctx, MetadataPath(c.RootPath), c, s.policy)
}

// WriteArtifact validates and atomically persists a handoff artifact at its
// boundary path under the campaign root. A reader never observes a partial
// artifact: the write is temp-file-then-rename.
func (s *Store) WriteArtifact(ctx context.Context, a *HandoffArtifact) error {
	if err := a.Validate(); err != nil {
		return NewHandoffValidationError("refusing to persist invalid handoff artifact").
			WithContext("boundary", a.Boundary().String()).
			WithCause(err)
	}

	path := ArtifactPath(a.CampaignRoot, Phase(a.FromStage), Phase(a.ToStage))
	return WriteStructuredAtomic(ctx, path, a, s.policy)
}

// LoadArtifact reads the handoff artifact for a boundary.
func (s *Store) LoadArtifact(ctx context.Context, root string, from, to Phase) (*HandoffArtifact, error) {
	var a HandoffArtifact
	if err := ReadStructured(ctx, ArtifactPath(root, from, to), s.policy, &a); err != nil {
		return nil, err
	}

	if err := a.Validate(); err != nil {
		return nil, NewHandoffValidationError("handoff artifact is malformed").
			WithContext("boundary", Boundary{From: from, To: to}.String()).
			WithCause(err)
	}

	return &a, nil
}

// ArtifactExists checks whether a boundary's artifact has been written.
func (s *Store) ArtifactExists(ctx context.Context, root string, from, to Phase) (bool, error) {
	return Exists(ctx, ArtifactPath(root, from, to), s.policy)
}

// MarkFailed finalizes the campaign into the terminal failed state,
// appending the error to the campaign log. The record is re-read from disk
// first so a stale in-memory copy can never clobber completed-stage history.
// Marking an already-terminal campaign is a no-op returning current state.
func (s *Store) MarkFailed(ctx context.Context, root string, stage string, cause error) (*Campaign, error) {
	c, err := s.LoadMetadata(ctx, root)
	if err != nil {
		return nil, err
	}

	if c.Phase.Terminal() {
		return c, nil
	}

	kind := "unknown"
	if k, ok := KindOf(cause); ok {
		kind = string(k)
	}

	c.Errors = append(c.Errors, StageError{
		Stage:     stage,
		Kind:      kind,
		Message:   fmt.Sprintf("%v", cause),
		Timestamp: time.Now().UTC(),
	})
	c.Phase = PhaseFailed
	c.Status = StatusFailed

	if err := s.SaveMetadata(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Policy returns the store's retry policy so collaborating components
// (validator, resolver) use the same tuning.
func (s *Store) Policy() RetryPolicy {
	return s.policy
}
