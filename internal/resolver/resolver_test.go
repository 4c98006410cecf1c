package resolver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

func testPolicy() campaign.RetryPolicy {
	return campaign.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func createCampaignRoot(t *testing.T, dir, name, topic string) *campaign.Campaign {
	t.Helper()
	store := campaign.NewStore(testPolicy())
	c, err := store.Create(context.Background(), filepath.Join(dir, name), campaign.CreateParams{Topic: topic})
	require.NoError(t, err)
	return c
}

func TestResolve_ExplicitPath(t *testing.T) {
	ctx := context.Background()

	t.Run("valid directory resolves", func(t *testing.T) {
		c := createCampaignRoot(t, t.TempDir(), "c1", "Paris in spring")

		root, err := Resolve(ctx, Request{ExplicitPath: c.RootPath}, testPolicy())
		require.NoError(t, err)
		assert.Equal(t, c.RootPath, root)
	})

	t.Run("missing directory is rejected with diagnostics", func(t *testing.T) {
		_, err := Resolve(ctx, Request{ExplicitPath: "/nonexistent/campaign"}, testPolicy())
		require.Error(t, err)
		assert.True(t, campaign.IsKind(err, campaign.KindPathResolution))
		assert.Contains(t, err.Error(), "explicit path")
		assert.Contains(t, err.Error(), "/nonexistent/campaign")
	})

	t.Run("file instead of directory is rejected", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "not-a-dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		_, err := Resolve(ctx, Request{ExplicitPath: file}, testPolicy())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := createCampaignRoot(t, t.TempDir(), "c1", "Paris in spring")

	first, err := Resolve(ctx, Request{ExplicitPath: c.RootPath}, testPolicy())
	require.NoError(t, err)

	// resolve(resolve(path)) must equal resolve(path), byte for byte.
	second, err := Resolve(ctx, Request{ExplicitPath: first}, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A messy but equivalent spelling of the same path resolves identically.
	messy := filepath.Join(c.RootPath, "..", filepath.Base(c.RootPath)) + string(os.PathSeparator)
	third, err := Resolve(ctx, Request{ExplicitPath: messy}, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestResolve_FromArtifact(t *testing.T) {
	ctx := context.Background()

	t.Run("artifact root resolves identically to explicit path", func(t *testing.T) {
		c := createCampaignRoot(t, t.TempDir(), "c1", "Paris in spring")

		artifact := &campaign.HandoffArtifact{
			FromStage:         string(campaign.PhaseContent),
			ToStage:           string(campaign.PhaseDesign),
			CampaignID:        c.ID,
			CampaignRoot:      c.RootPath,
			CorrelationID:     c.CorrelationID,
			StructuredContext: json.RawMessage(`{}`),
		}

		viaArtifact, err := Resolve(ctx, Request{Artifact: artifact}, testPolicy())
		require.NoError(t, err)

		viaPath, err := Resolve(ctx, Request{ExplicitPath: c.RootPath}, testPolicy())
		require.NoError(t, err)
		assert.Equal(t, viaPath, viaArtifact)
	})

	t.Run("artifact without a root is rejected", func(t *testing.T) {
		artifact := &campaign.HandoffArtifact{FromStage: "content", ToStage: "design"}
		_, err := Resolve(ctx, Request{Artifact: artifact}, testPolicy())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "artifact carries no campaign root")
	})
}

func TestResolve_ByCampaignID(t *testing.T) {
	ctx := context.Background()

	t.Run("scan finds matching root", func(t *testing.T) {
		campaignsDir := t.TempDir()
		c := createCampaignRoot(t, campaignsDir, "spring-paris", "Paris in spring")
		createCampaignRoot(t, campaignsDir, "other", "Other campaign")

		root, err := Resolve(ctx, Request{CampaignID: c.ID, CampaignsDir: campaignsDir}, testPolicy())
		require.NoError(t, err)
		assert.Equal(t, c.RootPath, root)
	})

	t.Run("unknown id lists the scan rejection", func(t *testing.T) {
		campaignsDir := t.TempDir()
		createCampaignRoot(t, campaignsDir, "spring-paris", "Paris in spring")

		_, err := Resolve(ctx, Request{CampaignID: "00000000-0000-0000-0000-000000000000", CampaignsDir: campaignsDir}, testPolicy())
		require.Error(t, err)
		assert.True(t, campaign.IsKind(err, campaign.KindPathResolution))
		assert.Contains(t, err.Error(), "no campaign root with id")
	})

	t.Run("non-campaign directories are skipped", func(t *testing.T) {
		campaignsDir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(campaignsDir, "junk"), 0755))
		c := createCampaignRoot(t, campaignsDir, "spring-paris", "Paris in spring")

		root, err := Resolve(ctx, Request{CampaignID: c.ID, CampaignsDir: campaignsDir}, testPolicy())
		require.NoError(t, err)
		assert.Equal(t, c.RootPath, root)
	})
}

func TestResolve_CandidateOrder(t *testing.T) {
	ctx := context.Background()
	campaignsDir := t.TempDir()
	explicit := createCampaignRoot(t, campaignsDir, "explicit", "Explicit campaign")
	scanned := createCampaignRoot(t, campaignsDir, "scanned", "Scanned campaign")

	// A valid explicit path wins over a valid campaign id scan.
	root, err := Resolve(ctx, Request{
		ExplicitPath: explicit.RootPath,
		CampaignID:   scanned.ID,
		CampaignsDir: campaignsDir,
	}, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, explicit.RootPath, root)

	// When the explicit path is invalid, resolution falls through to the
	// scan and the diagnostic still names the failed explicit candidate.
	root, err = Resolve(ctx, Request{
		ExplicitPath: filepath.Join(campaignsDir, "missing"),
		CampaignID:   scanned.ID,
		CampaignsDir: campaignsDir,
	}, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, scanned.RootPath, root)
}

func TestResolve_NoReference(t *testing.T) {
	_, err := Resolve(context.Background(), Request{}, testPolicy())
	require.Error(t, err)
	assert.True(t, campaign.IsKind(err, campaign.KindPathResolution))
	assert.Contains(t, err.Error(), "no campaign reference supplied")
}
