package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtuzov/emailmakers-sub004/internal/printer"
	"github.com/rtuzov/emailmakers-sub004/internal/resolver"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

var (
	statusCampaignID string
	statusJSON       bool
)

// stalledAfter is how long a running campaign may go without a metadata
// write before status flags it as stalled.
const stalledAfter = 30 * time.Minute

var statusCmd = &cobra.Command{
	Use:   "status [campaign-path]",
	Short: "Show the state of a campaign",
	Long: `Show a campaign's phase, completed stages and error log.

A campaign still marked running whose metadata has not been touched
recently is flagged as stalled: its driver likely died without
finalizing, and re-running it will resume from the persisted phase.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusCampaignID, "campaign", "", "Campaign id to look up under the campaigns directory")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return printer.FromError("Failed to load configuration", err)
	}

	req := resolver.Request{
		CampaignID:   statusCampaignID,
		CampaignsDir: cfg.CampaignsDir,
	}
	if len(args) == 1 {
		req.ExplicitPath = args[0]
	}

	root, err := resolver.Resolve(ctx, req, cfg.RetryPolicy())
	if err != nil {
		return printer.FromError("Failed to resolve campaign", err)
	}

	c, err := newStore(cfg).LoadMetadata(ctx, root)
	if err != nil {
		return printer.FromError("Failed to read campaign metadata", err)
	}

	if statusJSON {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printer.Printf("Campaign:    %s\n", c.ID)
	printer.Printf("Topic:       %s\n", c.Topic)
	if c.Destination != "" {
		printer.Printf("Destination: %s\n", c.Destination)
	}
	printer.Printf("Phase:       %s\n", printer.PhaseLabel(c.Phase))
	printer.Printf("Status:      %s\n", c.Status)
	printer.Printf("Root:        %s\n", c.RootPath)
	printer.Printf("Updated:     %s\n", c.UpdatedAt.Format(time.RFC3339))

	if len(c.CompletedStages) > 0 {
		printer.Printf("\nCompleted stages:\n")
		for _, s := range c.CompletedStages {
			printer.Success("%s\n", s)
		}
	}

	if len(c.Errors) > 0 {
		printer.Printf("\nErrors:\n")
		for _, e := range c.Errors {
			printer.Printf("  [%s] %s at %s: %s\n", e.Kind, e.Stage,
				e.Timestamp.Format(time.RFC3339), e.Message)
		}
	}

	if c.Status == campaign.StatusRunning && time.Since(c.UpdatedAt) > stalledAfter {
		printer.Printf("\n")
		printer.Warning("Campaign appears stalled: no progress since %s.\n", c.UpdatedAt.Format(time.RFC3339))
		printer.Printf("Re-run 'emailmakers run %s' to resume from phase %s.\n", c.RootPath, c.Phase)
	}

	return nil
}
