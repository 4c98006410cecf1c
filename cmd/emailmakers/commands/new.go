package commands

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtuzov/emailmakers-sub004/internal/events"
	"github.com/rtuzov/emailmakers-sub004/internal/printer"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

var (
	newTopic       string
	newDestination string
	newName        string
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new campaign",
	Long: `Create a new campaign directory under the campaigns directory and
initialize its metadata. The campaign starts in phase "initialized";
run 'emailmakers run' to drive it through the pipeline.`,
	RunE: runNew,
}

func init() {
	newCmd.Flags().StringVar(&newTopic, "topic", "", "Campaign topic (required)")
	newCmd.Flags().StringVar(&newDestination, "destination", "", "Destination audience or list")
	newCmd.Flags().StringVar(&newName, "name", "", "Directory name for the campaign (default: derived from the topic)")
	newCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(newCmd)
}

// slugify derives a directory name from the topic.
func slugify(topic string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "campaign"
	}
	return slug + "-" + time.Now().UTC().Format("20060102-150405")
}

func runNew(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return printer.FromError("Failed to load configuration", err)
	}
	if err := cfg.CheckCredentials(); err != nil {
		return printer.FromError("Missing credentials", err)
	}

	name := newName
	if name == "" {
		name = slugify(newTopic)
	}

	store := newStore(cfg)
	c, err := store.Create(ctx, filepath.Join(cfg.CampaignsDir, name),
		campaign.CreateParams{Topic: newTopic, Destination: newDestination})
	if err != nil {
		return printer.FromError("Failed to create campaign", err)
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		printer.Warning("Event publishing disabled: %v\n", err)
	} else {
		defer pub.Close()
		events.PublishBestEffort(ctx, pub, events.Event{
			Type:          events.TypeCampaignCreated,
			CampaignID:    c.ID,
			CorrelationID: c.CorrelationID,
			Phase:         c.Phase,
		})
	}

	printer.Success("Created campaign %s\n", c.ID)
	printer.Printf("  Root:        %s\n", c.RootPath)
	printer.Printf("  Correlation: %s\n", c.CorrelationID)
	printer.Printf("\nRun 'emailmakers run %s' to start the pipeline.\n", c.RootPath)
	return nil
}
