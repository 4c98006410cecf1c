// Package resolver normalizes heterogeneous campaign references (an
// explicit directory, a handoff artifact, or a bare campaign id) into one
// validated absolute campaign root.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// Request carries the acceptable campaign reference shapes, tried in order:
// explicit path, then the root embedded in an artifact, then a directory
// scan matching the campaign id. At least one field must be set.
type Request struct {
	ExplicitPath string                    // Candidate (a): a directory given directly by the caller
	Artifact     *campaign.HandoffArtifact // Candidate (b): the root recorded in a prior handoff
	CampaignID   string                    // Candidate (c): scan CampaignsDir for this campaign id
	CampaignsDir string                    // Scan base for candidate (c)
}

// rejection records why one candidate was not accepted, for diagnostics.
type rejection struct {
	Source string
	Path   string
	Reason string
}

// Resolve returns the validated absolute campaign root for the request, or
// a PathResolutionError listing every attempted candidate and why it was
// rejected. Resolution is idempotent: the same logical campaign resolves to
// byte-identical path strings regardless of the accepted input shape,
// because every accepted path is canonicalized the same way.
func Resolve(ctx context.Context, req Request, policy campaign.RetryPolicy) (string, error) {
	var rejections []rejection

	if req.ExplicitPath != "" {
		root, reason := tryCandidate(req.ExplicitPath)
		if reason == "" {
			return root, nil
		}
		rejections = append(rejections, rejection{Source: "explicit path", Path: req.ExplicitPath, Reason: reason})
	}

	if req.Artifact != nil {
		if req.Artifact.CampaignRoot == "" {
			rejections = append(rejections, rejection{
				Source: "handoff artifact",
				Path:   "(none)",
				Reason: "artifact carries no campaign root",
			})
		} else {
			root, reason := tryCandidate(req.Artifact.CampaignRoot)
			if reason == "" {
				return root, nil
			}
			rejections = append(rejections, rejection{Source: "handoff artifact", Path: req.Artifact.CampaignRoot, Reason: reason})
		}
	}

	if req.CampaignID != "" {
		root, scanRejections := scanForCampaign(ctx, req.CampaignsDir, req.CampaignID, policy)
		if root != "" {
			return root, nil
		}
		rejections = append(rejections, scanRejections...)
	}

	if len(rejections) == 0 {
		return "", campaign.NewPathResolutionError("no campaign reference supplied")
	}

	var lines []string
	for _, r := range rejections {
		lines = append(lines, fmt.Sprintf("%s %q: %s", r.Source, r.Path, r.Reason))
	}

	return "", campaign.NewPathResolutionError("no candidate campaign root validated").
		WithContext("candidates", strings.Join(lines, "; "))
}

// tryCandidate canonicalizes and validates one candidate directory.
// Returns the canonical path and an empty reason on success, or an empty
// path and the rejection reason.
func tryCandidate(path string) (string, string) {
	canonical, err := canonicalize(path)
	if err != nil {
		return "", err.Error()
	}

	if reason := validateRoot(canonical); reason != "" {
		return "", reason
	}

	return canonical, ""
}

// canonicalize resolves symlinks and returns a cleaned absolute path, so
// repeated resolution of the same directory yields identical strings.
func canonicalize(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %v", err)
	}

	abs, err := filepath.Abs(real)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %v", err)
	}

	return filepath.Clean(abs), nil
}

// validateRoot checks that path is an existing directory with read and
// write access. Returns an empty string when valid, the reason otherwise.
func validateRoot(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "directory does not exist"
		}
		return fmt.Sprintf("cannot stat: %v", err)
	}

	if !info.IsDir() {
		return "not a directory"
	}

	// Read access: listing the directory must succeed.
	if _, err := os.ReadDir(path); err != nil {
		return fmt.Sprintf("not readable: %v", err)
	}

	// Write access: probe with a real file rather than trusting mode bits,
	// which lie on some mounts.
	probe, err := os.CreateTemp(path, ".emailmakers-probe-*")
	if err != nil {
		return fmt.Sprintf("not writable: %v", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return ""
}

// scanForCampaign searches the campaigns directory for roots whose metadata
// matches the campaign id, returning the most recently modified valid match.
func scanForCampaign(ctx context.Context, campaignsDir, campaignID string, policy campaign.RetryPolicy) (string, []rejection) {
	if campaignsDir == "" {
		return "", []rejection{{Source: "campaign id scan", Path: "(none)", Reason: "no campaigns directory configured"}}
	}

	entries, err := os.ReadDir(campaignsDir)
	if err != nil {
		return "", []rejection{{Source: "campaign id scan", Path: campaignsDir, Reason: fmt.Sprintf("cannot list campaigns directory: %v", err)}}
	}

	type match struct {
		root    string
		modTime int64
	}
	var matches []match
	var rejections []rejection

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		root := filepath.Join(campaignsDir, entry.Name())
		metaPath := campaign.MetadataPath(root)

		var meta campaign.Campaign
		if err := campaign.ReadStructured(ctx, metaPath, policy, &meta); err != nil {
			// Not a campaign root, or unreadable metadata; skip silently.
			// Foreign directories under the campaigns dir are expected.
			continue
		}

		if meta.ID != campaignID {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			rejections = append(rejections, rejection{Source: "campaign id scan", Path: root, Reason: fmt.Sprintf("cannot stat: %v", err)})
			continue
		}

		matches = append(matches, match{root: root, modTime: info.ModTime().UnixNano()})
	}

	if len(matches) == 0 {
		rejections = append(rejections, rejection{
			Source: "campaign id scan",
			Path:   campaignsDir,
			Reason: fmt.Sprintf("no campaign root with id %s", campaignID),
		})
		return "", rejections
	}

	// Most recently modified root wins when a campaign was copied around.
	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })

	for _, m := range matches {
		root, reason := tryCandidate(m.root)
		if reason == "" {
			return root, nil
		}
		rejections = append(rejections, rejection{Source: "campaign id scan", Path: m.root, Reason: reason})
	}

	return "", rejections
}
