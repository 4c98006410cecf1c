package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rtuzov/emailmakers-sub004/internal/pipeline"
	"github.com/rtuzov/emailmakers-sub004/internal/printer"
	"github.com/rtuzov/emailmakers-sub004/internal/resolver"
	"github.com/rtuzov/emailmakers-sub004/internal/stages"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

var runCampaignID string

var runCmd = &cobra.Command{
	Use:   "run [campaign-path]",
	Short: "Run a campaign through the pipeline",
	Long: `Run the stage pipeline on a campaign until it completes or fails.

The campaign may be referenced by an explicit path or by --campaign with
its id, which is looked up under the campaigns directory. A previously
interrupted campaign resumes from its persisted phase; a terminal
campaign is reported unchanged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCampaignID, "campaign", "", "Campaign id to look up under the campaigns directory")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return printer.FromError("Failed to load configuration", err)
	}
	if err := cfg.CheckCredentials(); err != nil {
		return printer.FromError("Missing credentials", err)
	}

	req := resolver.Request{
		CampaignID:   runCampaignID,
		CampaignsDir: cfg.CampaignsDir,
	}
	if len(args) == 1 {
		req.ExplicitPath = args[0]
	}

	root, err := resolver.Resolve(ctx, req, cfg.RetryPolicy())
	if err != nil {
		return printer.FromError("Failed to resolve campaign", err)
	}

	store := newStore(cfg)
	pub, err := newPublisher(cfg)
	if err != nil {
		return printer.FromError("Failed to connect event publisher", err)
	}
	defer pub.Close()

	driver := pipeline.NewDriver(store, stages.NewRegistry(store), thresholds(cfg), pub, cfg.StageTimeout())

	printer.Step("Running pipeline on %s\n", root)
	c, err := driver.Run(ctx, root)
	if err != nil {
		if c != nil {
			printer.Summary(c)
		}
		return printer.FromError("Campaign failed", err)
	}

	switch c.Phase {
	case campaign.PhaseCompleted:
		printer.Success("Campaign %s completed\n", c.ID)
	case campaign.PhaseFailed:
		// Terminal before this run started.
		printer.Warning("Campaign %s had already failed; see 'emailmakers status'\n", c.ID)
	}
	printer.Summary(c)
	return nil
}
