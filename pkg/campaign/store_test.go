package campaign

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	})
}

func TestStoreCreate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	t.Run("scaffolds root layout and metadata", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "c1")

		c, err := store.Create(ctx, root, CreateParams{Topic: "Paris in spring", Destination: "fr-newsletter"})
		require.NoError(t, err)

		assert.Equal(t, PhaseInitialized, c.Phase)
		assert.Equal(t, StatusRunning, c.Status)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.CorrelationID)
		assert.True(t, filepath.IsAbs(c.RootPath))

		for _, dir := range SubDirs() {
			info, err := os.Stat(filepath.Join(c.RootPath, dir))
			require.NoError(t, err, "directory %s must exist", dir)
			assert.True(t, info.IsDir())
		}

		loaded, err := store.LoadMetadata(ctx, c.RootPath)
		require.NoError(t, err)
		assert.Equal(t, c.ID, loaded.ID)
		assert.Equal(t, c.CorrelationID, loaded.CorrelationID)
		assert.Equal(t, "Paris in spring", loaded.Topic)
		assert.Equal(t, "fr-newsletter", loaded.Destination)
	})

	t.Run("empty topic is a configuration error", func(t *testing.T) {
		_, err := store.Create(ctx, filepath.Join(t.TempDir(), "c2"), CreateParams{})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindConfiguration))
	})
}

func TestStoreMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	root := filepath.Join(t.TempDir(), "c1")

	c, err := store.Create(ctx, root, CreateParams{Topic: "Paris in spring"})
	require.NoError(t, err)

	c.Phase = PhaseContent
	c.CompletedStages = append(c.CompletedStages, string(PhaseDataCollection))
	require.NoError(t, store.SaveMetadata(ctx, c))

	loaded, err := store.LoadMetadata(ctx, c.RootPath)
	require.NoError(t, err)
	assert.Equal(t, PhaseContent, loaded.Phase)
	assert.Equal(t, []string{string(PhaseDataCollection)}, loaded.CompletedStages)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestStoreLoadMetadata_Corrupted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(MetadataPath(root), []byte(`{"id":"not-a-uuid"}`), 0644))

	_, err := store.LoadMetadata(ctx, root)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindDataExtraction))
}

func TestStoreLoadMetadata_UnrecoverableCorrelationID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	c, err := store.Create(ctx, filepath.Join(t.TempDir(), "c1"), CreateParams{Topic: "Paris in spring"})
	require.NoError(t, err)

	data, err := os.ReadFile(MetadataPath(c.RootPath))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["correlation_id"] = "not-a-uuid"
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(MetadataPath(c.RootPath), data, 0644))

	_, err = store.LoadMetadata(ctx, c.RootPath)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfiguration),
		"a campaign that lost its correlation id is an identity failure")
	assert.Contains(t, err.Error(), c.ID)
}

func TestStoreArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	root := filepath.Join(t.TempDir(), "c1")

	c, err := store.Create(ctx, root, CreateParams{Topic: "Paris in spring"})
	require.NoError(t, err)

	artifact := &HandoffArtifact{
		FromStage:         string(PhaseContent),
		ToStage:           string(PhaseDesign),
		CampaignID:        c.ID,
		CampaignRoot:      c.RootPath,
		CorrelationID:     c.CorrelationID,
		Summary:           "Copy ready for rendering",
		KeyOutputs:        []string{"data/content.json"},
		StructuredContext: json.RawMessage(`{"subject":"Paris in spring","body_file":"data/content.json"}`),
		DataFiles:         []string{"data/content.json"},
		CreatedAt:         time.Now().UTC(),
	}

	require.NoError(t, store.WriteArtifact(ctx, artifact))

	exists, err := store.ArtifactExists(ctx, c.RootPath, PhaseContent, PhaseDesign)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.LoadArtifact(ctx, c.RootPath, PhaseContent, PhaseDesign)
	require.NoError(t, err)
	assert.Equal(t, artifact.FromStage, loaded.FromStage)
	assert.Equal(t, artifact.ToStage, loaded.ToStage)
	assert.Equal(t, artifact.CorrelationID, loaded.CorrelationID)
	assert.Equal(t, artifact.KeyOutputs, loaded.KeyOutputs)
	assert.Equal(t, artifact.DataFiles, loaded.DataFiles)
	assert.JSONEq(t, string(artifact.StructuredContext), string(loaded.StructuredContext))
}

func TestStoreWriteArtifact_Invalid(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	err := store.WriteArtifact(ctx, &HandoffArtifact{FromStage: "content"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindHandoffValidation))
}

func TestStoreMarkFailed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	root := filepath.Join(t.TempDir(), "c1")

	c, err := store.Create(ctx, root, CreateParams{Topic: "Paris in spring"})
	require.NoError(t, err)

	cause := NewHandoffValidationError("required data file does not exist").
		WithContext("file", "data/content.json")

	failed, err := store.MarkFailed(ctx, c.RootPath, string(PhaseDesign), cause)
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, failed.Phase)
	assert.Equal(t, StatusFailed, failed.Status)
	require.Len(t, failed.Errors, 1)
	assert.Equal(t, string(PhaseDesign), failed.Errors[0].Stage)
	assert.Equal(t, string(KindHandoffValidation), failed.Errors[0].Kind)
	assert.Contains(t, failed.Errors[0].Message, "data/content.json")

	t.Run("marking a terminal campaign is a no-op", func(t *testing.T) {
		again, err := store.MarkFailed(ctx, c.RootPath, string(PhaseQuality), cause)
		require.NoError(t, err)
		assert.Len(t, again.Errors, 1, "no second error entry appended")
	})
}
