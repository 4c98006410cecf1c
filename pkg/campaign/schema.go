package campaign

import (
	"fmt"
	"path/filepath"
)

// Campaign root layout helpers
//
// Every campaign owns one root directory; all orchestration state lives in
// files under that root. Paths are built with these helpers so the layout is
// defined in exactly one place.
//
// Layout relative to the root:
//
//	campaign-metadata.json           campaign record (single source of truth)
//	data/                            stage-specific intermediate outputs
//	templates/                       rendering inputs/outputs
//	docs/                            generated reports
//	<from>-to-<to>.json              one handoff artifact per stage boundary

// MetadataFileName is the campaign record file at the campaign root.
const MetadataFileName = "campaign-metadata.json"

// DataDirName holds stage-specific intermediate outputs.
const DataDirName = "data"

// TemplatesDirName holds rendering inputs and outputs.
const TemplatesDirName = "templates"

// DocsDirName holds generated reports.
const DocsDirName = "docs"

// MetadataPath returns the absolute path of the campaign metadata file.
func MetadataPath(root string) string {
	return filepath.Join(root, MetadataFileName)
}

// DataDir returns the absolute path of the data directory.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// TemplatesDir returns the absolute path of the templates directory.
func TemplatesDir(root string) string {
	return filepath.Join(root, TemplatesDirName)
}

// DocsDir returns the absolute path of the docs directory.
func DocsDir(root string) string {
	return filepath.Join(root, DocsDirName)
}

// SubDirs lists the directories scaffolded under every campaign root.
func SubDirs() []string {
	return []string{DataDirName, TemplatesDirName, DocsDirName}
}

// ArtifactFileName returns the handoff artifact file name for a boundary.
// Pattern: {from}-to-{to}.json
func ArtifactFileName(from, to Phase) string {
	return fmt.Sprintf("%s-to-%s.json", from, to)
}

// ArtifactPath returns the absolute path of a boundary's handoff artifact.
func ArtifactPath(root string, from, to Phase) string {
	return filepath.Join(root, ArtifactFileName(from, to))
}
