// Package stages ships the built-in reference implementations of the five
// pipeline stages. They are deterministic: output depends only on the
// campaign brief and the files produced by earlier stages, so a re-run over
// the same root produces the same campaign.
package stages

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/rtuzov/emailmakers-sub004/internal/handoff"
	"github.com/rtuzov/emailmakers-sub004/internal/pipeline"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// File paths produced by the reference stages, relative to the campaign root.
const (
	BriefFile    = "data/brief.json"
	ContentFile  = "data/content.json"
	HTMLTemplate = "templates/email.html"
	TextTemplate = "templates/email.txt"
	ReportFile   = "docs/quality-report.json"
	ManifestFile = "docs/delivery-manifest.json"
)

// NewRegistry wires the reference stages over the given store. The store's
// retry policy covers every file the stages produce.
func NewRegistry(store *campaign.Store) pipeline.Registry {
	s := &stageSet{store: store}
	return pipeline.Registry{
		campaign.PhaseDataCollection: s.collect,
		campaign.PhaseContent:        s.content,
		campaign.PhaseDesign:         s.design,
		campaign.PhaseQuality:        s.quality,
		campaign.PhaseDelivery:       s.deliver,
	}
}

type stageSet struct {
	store *campaign.Store
}

func (s *stageSet) write(ctx context.Context, ec *pipeline.ExecutionContext, rel string, v any) error {
	return campaign.WriteStructuredAtomic(ctx, filepath.Join(ec.Campaign.RootPath, rel), v, s.store.Policy())
}

func (s *stageSet) writeRaw(ctx context.Context, ec *pipeline.ExecutionContext, rel string, data []byte) error {
	return campaign.WriteAtomic(ctx, filepath.Join(ec.Campaign.RootPath, rel), data, s.store.Policy())
}

// brief is the persisted shape of data/brief.json.
type brief struct {
	Topic       string    `json:"topic"`
	Destination string    `json:"destination"`
	CollectedAt time.Time `json:"collected_at"`
}

// collect records the campaign brief as the first data file.
func (s *stageSet) collect(ctx context.Context, ec *pipeline.ExecutionContext) (*pipeline.StageOutput, error) {
	b := brief{
		Topic:       ec.Topic,
		Destination: ec.Destination,
		CollectedAt: time.Now().UTC(),
	}
	if err := s.write(ctx, ec, BriefFile, b); err != nil {
		return nil, err
	}

	return &pipeline.StageOutput{
		Summary:    fmt.Sprintf("Collected brief for %q", ec.Topic),
		KeyOutputs: []string{BriefFile},
		StructuredContext: handoff.MustMarshal(&handoff.CollectionContext{
			Topic:       ec.Topic,
			Destination: ec.Destination,
			BriefFile:   BriefFile,
		}),
		DataFiles: []string{BriefFile},
	}, nil
}

// copyDoc is the persisted shape of data/content.json.
type copyDoc struct {
	Subject    string   `json:"subject"`
	Preheader  string   `json:"preheader"`
	Paragraphs []string `json:"paragraphs"`
}

// content derives subject line, preheader and body copy from the brief.
func (s *stageSet) content(ctx context.Context, ec *pipeline.ExecutionContext) (*pipeline.StageOutput, error) {
	in, err := handoff.DecodeCollection(ec.Incoming.StructuredContext)
	if err != nil {
		return nil, err
	}

	doc := copyDoc{
		Subject:   in.Topic,
		Preheader: fmt.Sprintf("Everything you need to know about %s", strings.ToLower(in.Topic)),
		Paragraphs: []string{
			fmt.Sprintf("We put together this edition of the %s newsletter around one theme: %s.",
				in.Destination, in.Topic),
			fmt.Sprintf("Read on for the highlights our team selected for %s.", in.Destination),
		},
	}
	if err := s.write(ctx, ec, ContentFile, doc); err != nil {
		return nil, err
	}

	words := 0
	for _, p := range doc.Paragraphs {
		words += len(strings.Fields(p))
	}

	return &pipeline.StageOutput{
		Summary:    fmt.Sprintf("Drafted %d words of copy", words),
		KeyOutputs: []string{ContentFile},
		StructuredContext: handoff.MustMarshal(&handoff.ContentContext{
			Subject:   doc.Subject,
			Preheader: doc.Preheader,
			Topic:     in.Topic,
			BodyFile:  ContentFile,
			WordCount: words,
		}),
		DataFiles: []string{ContentFile},
	}, nil
}

var htmlTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Subject}}</title></head>
<body>
<p class="preheader">{{.Preheader}}</p>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}<p class="footer">Unsubscribe: {{"{{unsubscribe_url}}"}}</p>
</body>
</html>
`))

// design renders the copy into the HTML and plain-text templates.
func (s *stageSet) design(ctx context.Context, ec *pipeline.ExecutionContext) (*pipeline.StageOutput, error) {
	in, err := handoff.DecodeContent(ec.Incoming.StructuredContext)
	if err != nil {
		return nil, err
	}

	var doc copyDoc
	if err := campaign.ReadStructured(ctx, ec.DataFlow[in.BodyFile], s.store.Policy(), &doc); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := htmlTmpl.Execute(&html, doc); err != nil {
		return nil, campaign.NewDataExtractionError("failed to render HTML template").WithCause(err)
	}
	if err := s.writeRaw(ctx, ec, HTMLTemplate, html.Bytes()); err != nil {
		return nil, err
	}

	var text strings.Builder
	text.WriteString(doc.Subject + "\n\n")
	for _, p := range doc.Paragraphs {
		text.WriteString(p + "\n\n")
	}
	text.WriteString("Unsubscribe: {{unsubscribe_url}}\n")
	if err := s.writeRaw(ctx, ec, TextTemplate, []byte(text.String())); err != nil {
		return nil, err
	}

	return &pipeline.StageOutput{
		Summary:    "Rendered HTML and plain-text templates",
		KeyOutputs: []string{HTMLTemplate, TextTemplate},
		StructuredContext: handoff.MustMarshal(&handoff.DesignContext{
			Subject:       in.Subject,
			HTMLTemplate:  HTMLTemplate,
			TextTemplate:  TextTemplate,
			TokensApplied: []string{"unsubscribe_url"},
		}),
		DataFiles: []string{HTMLTemplate, TextTemplate},
	}, nil
}

// qualityReport is the persisted shape of docs/quality-report.json.
type qualityReport struct {
	Checks   []qualityCheck `json:"checks"`
	Score    int            `json:"score"`
	Approved bool           `json:"approved"`
}

type qualityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Subject lines longer than this get truncated by most inbox providers.
const maxSubjectLength = 78

// quality inspects the rendered templates and gates on the configured
// thresholds. A score below the minimum fails the campaign.
func (s *stageSet) quality(ctx context.Context, ec *pipeline.ExecutionContext) (*pipeline.StageOutput, error) {
	in, err := handoff.DecodeDesign(ec.Incoming.StructuredContext)
	if err != nil {
		return nil, err
	}

	htmlData, err := campaign.Read(ctx, ec.DataFlow[in.HTMLTemplate], s.store.Policy())
	if err != nil {
		return nil, err
	}
	textData, err := campaign.Read(ctx, ec.DataFlow[in.TextTemplate], s.store.Policy())
	if err != nil {
		return nil, err
	}

	htmlStr := string(htmlData)
	report := qualityReport{
		Checks: []qualityCheck{
			{Name: "html_nonempty", Passed: len(htmlData) > 0},
			{Name: "text_nonempty", Passed: len(textData) > 0},
			{Name: "subject_present", Passed: strings.Contains(htmlStr, in.Subject)},
			{Name: "subject_length", Passed: len(in.Subject) <= maxSubjectLength,
				Detail: fmt.Sprintf("%d chars", len(in.Subject))},
			{Name: "unsubscribe_link", Passed: strings.Contains(htmlStr, "{{unsubscribe_url}}")},
		},
	}

	passed := 0
	for _, c := range report.Checks {
		if c.Passed {
			passed++
		}
	}
	report.Score = passed * 100 / len(report.Checks)
	report.Approved = report.Score >= ec.Thresholds.MinScore

	if err := s.write(ctx, ec, ReportFile, report); err != nil {
		return nil, err
	}

	if !report.Approved {
		var failing []string
		for _, c := range report.Checks {
			if !c.Passed {
				failing = append(failing, c.Name)
			}
		}
		return nil, campaign.NewHandoffValidationError(
			"quality gate not met: score %d below minimum %d (failing: %s)",
			report.Score, ec.Thresholds.MinScore, strings.Join(failing, ", "))
	}

	checkNames := make([]string, len(report.Checks))
	for i, c := range report.Checks {
		checkNames[i] = c.Name
	}

	return &pipeline.StageOutput{
		Summary:    fmt.Sprintf("Quality score %d, approved", report.Score),
		KeyOutputs: []string{ReportFile},
		StructuredContext: handoff.MustMarshal(&handoff.QualityContext{
			ReportFile: ReportFile,
			Score:      report.Score,
			Approved:   report.Approved,
			Checks:     checkNames,
		}),
		DataFiles: []string{ReportFile},
	}, nil
}

// manifest is the persisted shape of docs/delivery-manifest.json.
type manifest struct {
	CampaignID    string    `json:"campaign_id"`
	CorrelationID string    `json:"correlation_id"`
	Subject       string    `json:"subject"`
	Files         []string  `json:"files"`
	QualityScore  int       `json:"quality_score"`
	PackagedAt    time.Time `json:"packaged_at"`
}

// deliver writes the handover manifest referencing the approved templates.
func (s *stageSet) deliver(ctx context.Context, ec *pipeline.ExecutionContext) (*pipeline.StageOutput, error) {
	in, err := handoff.DecodeQuality(ec.Incoming.StructuredContext)
	if err != nil {
		return nil, err
	}

	if ec.Thresholds.RequireApproval && !in.Approved {
		return nil, campaign.NewHandoffValidationError("refusing to package an unapproved campaign")
	}

	m := manifest{
		CampaignID:    ec.Campaign.ID,
		CorrelationID: ec.CorrelationID,
		Subject:       ec.Topic,
		Files:         []string{HTMLTemplate, TextTemplate},
		QualityScore:  in.Score,
		PackagedAt:    time.Now().UTC(),
	}
	if err := s.write(ctx, ec, ManifestFile, m); err != nil {
		return nil, err
	}

	return &pipeline.StageOutput{
		Summary:    "Packaged templates for handover",
		KeyOutputs: []string{ManifestFile},
		StructuredContext: handoff.MustMarshal(&handoff.DeliveryContext{
			ManifestFile:  ManifestFile,
			PackagedFiles: m.Files,
		}),
		DataFiles: []string{ManifestFile},
	}, nil
}
