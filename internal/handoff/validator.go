package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// FieldError records one structural or dependency failure.
type FieldError struct {
	Path     string `json:"path"`     // Field path or data file path
	Expected string `json:"expected"` // What the schema required
	Actual   string `json:"actual"`   // What was found
}

// String renders the error for campaign error logs.
func (e FieldError) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// ValidationResult is the transient outcome of validating one artifact.
// It is never persisted standalone; the stage finalizer consumes it
// immediately and either proceeds or aborts. IsValid alone gates a stage
// transition; the score is a diagnostic heuristic and never authorizes one.
type ValidationResult struct {
	IsValid  bool
	Errors   []FieldError
	Warnings []string
	Score    int // 0-100: percentage of required fields, files and consistency checks passing
}

// Validator checks handoff artifacts against boundary schemas. It is a pure
// function of its arguments plus filesystem state and never mutates input.
type Validator struct {
	policy campaign.RetryPolicy
}

// NewValidator creates a validator whose file existence checks retry under
// the given policy.
func NewValidator(policy campaign.RetryPolicy) *Validator {
	return &Validator{policy: policy}
}

// Validate runs the four validation steps in order: structural field check,
// data file dependency check, cross-consistency check against campaign
// metadata, then completeness scoring.
func (v *Validator) Validate(ctx context.Context, artifact *campaign.HandoffArtifact, schema *Schema, campaignRoot string) ValidationResult {
	result := ValidationResult{}
	checksTotal := 0
	checksPassed := 0

	// Step 1: structural check. Decode into a generic map so a missing
	// field is distinguishable from a zero value; missing or mistyped
	// fields become errors, never silent defaults.
	var payload map[string]any
	if err := json.Unmarshal(artifact.StructuredContext, &payload); err != nil {
		result.Errors = append(result.Errors, FieldError{
			Path:     "structured_context",
			Expected: "JSON object",
			Actual:   fmt.Sprintf("undecodable: %v", err),
		})
		payload = nil
	}

	for _, spec := range schema.Fields {
		if !spec.Required && spec.CampaignField == "" {
			continue
		}

		if spec.Required {
			checksTotal++
		}

		value, present := payload[spec.Name]
		if !present || value == nil {
			if spec.Required {
				result.Errors = append(result.Errors, FieldError{
					Path:     "structured_context." + spec.Name,
					Expected: string(spec.Kind),
					Actual:   "missing",
				})
			}
			continue
		}

		if !matchesKind(value, spec.Kind) {
			if spec.Required {
				result.Errors = append(result.Errors, FieldError{
					Path:     "structured_context." + spec.Name,
					Expected: string(spec.Kind),
					Actual:   shapeOf(value),
				})
			}
			continue
		}

		if spec.Required {
			checksPassed++
		}
	}

	// Step 2: dependency check. Every listed data file must exist under the
	// campaign root; one error per missing file.
	for _, rel := range artifact.DataFiles {
		checksTotal++
		path := filepath.Join(campaignRoot, rel)

		exists, err := campaign.Exists(ctx, path, v.policy)
		if err != nil {
			result.Errors = append(result.Errors, FieldError{
				Path:     rel,
				Expected: "file exists",
				Actual:   fmt.Sprintf("unverifiable: %v", err),
			})
			continue
		}
		if !exists {
			result.Errors = append(result.Errors, FieldError{
				Path:     rel,
				Expected: "file exists",
				Actual:   "missing",
			})
			continue
		}

		checksPassed++
	}

	// Step 3: cross-consistency check. Fields bound to campaign metadata
	// must agree; mismatches are warnings unless the schema marks the field
	// authoritative.
	meta, err := campaign.NewStore(v.policy).LoadMetadata(ctx, campaignRoot)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("campaign metadata unavailable for consistency checks: %v", err))
	} else {
		for _, spec := range schema.Fields {
			if spec.CampaignField == "" {
				continue
			}

			value, present := payload[spec.Name]
			str, isString := value.(string)
			if !present || !isString {
				continue // presence/shape already handled by step 1
			}

			expected := campaignFieldValue(meta, spec.CampaignField)
			checksTotal++
			if str == expected {
				checksPassed++
				continue
			}

			if spec.Authoritative {
				result.Errors = append(result.Errors, FieldError{
					Path:     "structured_context." + spec.Name,
					Expected: expected,
					Actual:   str,
				})
			} else {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"structured_context.%s %q disagrees with campaign %s %q",
					spec.Name, str, spec.CampaignField, expected))
			}
		}
	}

	// Step 4: scoring.
	if checksTotal > 0 {
		result.Score = checksPassed * 100 / checksTotal
	} else {
		result.Score = 100
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ErrorSummary flattens the error list into one diagnostic string.
func (r ValidationResult) ErrorSummary() string {
	if len(r.Errors) == 0 {
		return ""
	}
	summary := r.Errors[0].String()
	for _, e := range r.Errors[1:] {
		summary += "; " + e.String()
	}
	return summary
}

// campaignFieldValue maps a schema's CampaignField name to the metadata value.
func campaignFieldValue(c *campaign.Campaign, field string) string {
	switch field {
	case "topic":
		return c.Topic
	case "destination":
		return c.Destination
	default:
		return ""
	}
}

// matchesKind checks a decoded JSON value against the declared field kind.
func matchesKind(value any, kind FieldKind) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		_, ok := value.(float64)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindList:
		_, ok := value.([]any)
		return ok
	case KindObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return false
	}
}

// shapeOf names the JSON shape of a decoded value for error messages.
func shapeOf(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
