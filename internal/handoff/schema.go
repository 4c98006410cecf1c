// Package handoff defines the per-boundary schemas for stage handoff
// artifacts and the validator that gates every stage transition.
//
// Each (from_stage, to_stage) boundary has exactly one concrete structured
// context type and one schema describing its required fields. Payloads are
// validated structurally before use and never coerced: a missing or
// mistyped field is a validation error, not a defaulted value.
package handoff

import (
	"encoding/json"
	"fmt"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// FieldKind names the JSON shape a structured context field must have.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindList   FieldKind = "list"
	KindObject FieldKind = "object"
)

// FieldSpec describes one field of a boundary's structured context.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool

	// CampaignField names the campaign metadata field this value must agree
	// with ("topic" or "destination"). Empty means no consistency check.
	CampaignField string

	// Authoritative escalates a campaign-field mismatch from a warning to a
	// validation error.
	Authoritative bool
}

// Schema is the validation contract for one stage boundary.
type Schema struct {
	Boundary campaign.Boundary
	Fields   []FieldSpec
}

// CollectionContext is the structured payload of data_collection->content.
type CollectionContext struct {
	Topic       string   `json:"topic"`
	Destination string   `json:"destination"`
	BriefFile   string   `json:"brief_file"`
	AssetRefs   []string `json:"asset_refs,omitempty"`
}

// ContentContext is the structured payload of content->design.
type ContentContext struct {
	Subject   string `json:"subject"`
	Preheader string `json:"preheader,omitempty"`
	Topic     string `json:"topic"`
	BodyFile  string `json:"body_file"`
	WordCount int    `json:"word_count,omitempty"`
}

// DesignContext is the structured payload of design->quality.
type DesignContext struct {
	Subject       string   `json:"subject"`
	HTMLTemplate  string   `json:"html_template"`
	TextTemplate  string   `json:"text_template"`
	TokensApplied []string `json:"tokens_applied,omitempty"`
}

// QualityContext is the structured payload of quality->delivery.
type QualityContext struct {
	ReportFile string   `json:"report_file"`
	Score      int      `json:"score"`
	Approved   bool     `json:"approved"`
	Checks     []string `json:"checks,omitempty"`
}

// DeliveryContext is the structured payload of delivery->completed.
type DeliveryContext struct {
	ManifestFile  string   `json:"manifest_file"`
	PackagedFiles []string `json:"packaged_files"`
}

// schemas is the closed registry: one schema per pipeline boundary.
var schemas = map[campaign.Boundary]*Schema{
	{From: campaign.PhaseDataCollection, To: campaign.PhaseContent}: {
		Boundary: campaign.Boundary{From: campaign.PhaseDataCollection, To: campaign.PhaseContent},
		Fields: []FieldSpec{
			{Name: "topic", Kind: KindString, Required: true, CampaignField: "topic", Authoritative: true},
			{Name: "destination", Kind: KindString, Required: true, CampaignField: "destination"},
			{Name: "brief_file", Kind: KindString, Required: true},
			{Name: "asset_refs", Kind: KindList},
		},
	},
	{From: campaign.PhaseContent, To: campaign.PhaseDesign}: {
		Boundary: campaign.Boundary{From: campaign.PhaseContent, To: campaign.PhaseDesign},
		Fields: []FieldSpec{
			{Name: "subject", Kind: KindString, Required: true},
			{Name: "preheader", Kind: KindString},
			{Name: "topic", Kind: KindString, Required: true, CampaignField: "topic"},
			{Name: "body_file", Kind: KindString, Required: true},
			{Name: "word_count", Kind: KindNumber},
		},
	},
	{From: campaign.PhaseDesign, To: campaign.PhaseQuality}: {
		Boundary: campaign.Boundary{From: campaign.PhaseDesign, To: campaign.PhaseQuality},
		Fields: []FieldSpec{
			{Name: "subject", Kind: KindString, Required: true},
			{Name: "html_template", Kind: KindString, Required: true},
			{Name: "text_template", Kind: KindString, Required: true},
			{Name: "tokens_applied", Kind: KindList},
		},
	},
	{From: campaign.PhaseQuality, To: campaign.PhaseDelivery}: {
		Boundary: campaign.Boundary{From: campaign.PhaseQuality, To: campaign.PhaseDelivery},
		Fields: []FieldSpec{
			{Name: "report_file", Kind: KindString, Required: true},
			{Name: "score", Kind: KindNumber, Required: true},
			{Name: "approved", Kind: KindBool, Required: true},
			{Name: "checks", Kind: KindList},
		},
	},
	{From: campaign.PhaseDelivery, To: campaign.PhaseCompleted}: {
		Boundary: campaign.Boundary{From: campaign.PhaseDelivery, To: campaign.PhaseCompleted},
		Fields: []FieldSpec{
			{Name: "manifest_file", Kind: KindString, Required: true},
			{Name: "packaged_files", Kind: KindList, Required: true},
		},
	},
}

// SchemaFor returns the schema for a boundary. An unknown boundary is a
// configuration error: the pipeline shape is fixed, so asking for a schema
// outside it means the caller is mis-wired.
func SchemaFor(b campaign.Boundary) (*Schema, error) {
	schema, ok := schemas[b]
	if !ok {
		return nil, campaign.NewConfigurationError("no handoff schema for boundary %s", b)
	}
	return schema, nil
}

// Boundaries returns every boundary with a registered schema.
func Boundaries() []campaign.Boundary {
	out := make([]campaign.Boundary, 0, len(schemas))
	for b := range schemas {
		out = append(out, b)
	}
	return out
}

// decode unmarshals a structured context into its concrete type, raising a
// DataExtractionError instead of tolerating malformed payloads.
func decode(raw json.RawMessage, out any, boundary campaign.Boundary) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return campaign.NewDataExtractionError("failed to decode structured context for %s", boundary).
			WithCause(err)
	}
	return nil
}

// DecodeCollection decodes a data_collection->content payload.
func DecodeCollection(raw json.RawMessage) (*CollectionContext, error) {
	var c CollectionContext
	if err := decode(raw, &c, campaign.Boundary{From: campaign.PhaseDataCollection, To: campaign.PhaseContent}); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeContent decodes a content->design payload.
func DecodeContent(raw json.RawMessage) (*ContentContext, error) {
	var c ContentContext
	if err := decode(raw, &c, campaign.Boundary{From: campaign.PhaseContent, To: campaign.PhaseDesign}); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeDesign decodes a design->quality payload.
func DecodeDesign(raw json.RawMessage) (*DesignContext, error) {
	var c DesignContext
	if err := decode(raw, &c, campaign.Boundary{From: campaign.PhaseDesign, To: campaign.PhaseQuality}); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeQuality decodes a quality->delivery payload.
func DecodeQuality(raw json.RawMessage) (*QualityContext, error) {
	var c QualityContext
	if err := decode(raw, &c, campaign.Boundary{From: campaign.PhaseQuality, To: campaign.PhaseDelivery}); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeDelivery decodes a delivery->completed payload.
func DecodeDelivery(raw json.RawMessage) (*DeliveryContext, error) {
	var c DeliveryContext
	if err := decode(raw, &c, campaign.Boundary{From: campaign.PhaseDelivery, To: campaign.PhaseCompleted}); err != nil {
		return nil, err
	}
	return &c, nil
}

// MustMarshal encodes a concrete context for embedding in an artifact.
// Encoding a value type defined in this package cannot fail; a failure
// indicates a programming error and panics.
func MustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("handoff: failed to marshal structured context: %v", err))
	}
	return data
}
