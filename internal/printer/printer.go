// Package printer renders CLI output: colored status lines, phase labels
// and rich error blocks built from the campaign error taxonomy.
package printer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	grey   = color.New(color.FgHiBlack)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	green.Printf("✓ %s", fmt.Sprintf(format, a...))
}

// Warning prints a warning message in yellow
func Warning(format string, a ...any) {
	yellow.Printf("⚠ %s", fmt.Sprintf(format, a...))
}

// Step prints a step message with emphasis (used while stages run)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}

// PhaseLabel renders a campaign phase with status coloring for tables and
// status output.
func PhaseLabel(p campaign.Phase) string {
	switch p {
	case campaign.PhaseCompleted:
		return green.Sprint(string(p))
	case campaign.PhaseFailed:
		return red.Sprint(string(p))
	case campaign.PhaseInitialized:
		return grey.Sprint(string(p))
	default:
		return cyan.Sprint(string(p))
	}
}

// Error prints a formatted error block to stderr: title in red, explanation,
// then optional suggestions. Returns a bare error carrying only the title so
// cobra (running with SilenceErrors) exits non-zero without re-printing.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	printSuggestions(suggestions)

	return fmt.Errorf("%s", title)
}

// FromError renders a campaign taxonomy error with its kind, context map and
// retry hint, falling back to a plain block for untyped errors.
func FromError(title string, err error) error {
	var cerr *campaign.Error
	if !errors.As(err, &cerr) {
		return Error(title, err.Error(), nil)
	}

	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", cerr.Message)

	if len(cerr.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		keys := make([]string, 0, len(cerr.Context))
		for k := range cerr.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", k, cerr.Context[k])
		}
	}

	var suggestions []string
	switch cerr.Kind {
	case campaign.KindPathResolution:
		suggestions = append(suggestions,
			"Check the campaign path or pass --campaigns-dir",
			"Run 'emailmakers list' to see known campaigns")
	case campaign.KindConfiguration:
		suggestions = append(suggestions, "Check emailmakers.yml and EMAILMAKERS_* environment variables")
	case campaign.KindFileOperation:
		if cerr.Retryable {
			suggestions = append(suggestions, "The operation is retryable; re-run the command")
		}
	}
	printSuggestions(suggestions)

	return fmt.Errorf("%s", title)
}

func printSuggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\n")
	if len(suggestions) == 1 {
		fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		return
	}
	fmt.Fprintf(os.Stderr, "Either:\n")
	for i, suggestion := range suggestions {
		fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
	}
}

// Summary prints the one-line campaign summary used by run and status.
func Summary(c *campaign.Campaign) {
	Printf("%s  %s  %s\n", c.ID, PhaseLabel(c.Phase), strings.Join(c.CompletedStages, ","))
}
