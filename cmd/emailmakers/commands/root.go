package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rtuzov/emailmakers-sub004/internal/config"
	"github.com/rtuzov/emailmakers-sub004/internal/events"
	"github.com/rtuzov/emailmakers-sub004/internal/pipeline"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath   string
	campaignsDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "emailmakers",
	Short: "EmailMakers - marketing email campaign pipeline",
	Long: `EmailMakers drives marketing email campaigns through a fixed stage
pipeline: data collection, content, design, quality and delivery.

Each campaign lives in its own directory; stage handoffs are validated
JSON artifacts, so the campaign root is a complete audit trail and the
pipeline can resume from any crash.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "emailmakers.yml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&campaignsDir, "campaigns-dir", "", "Override the campaigns directory")
}

// loadConfig loads the configuration and applies the --campaigns-dir flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if campaignsDir != "" {
		cfg.CampaignsDir = campaignsDir
	}
	return cfg, nil
}

// newStore builds the campaign store from the loaded configuration.
func newStore(cfg *config.Config) *campaign.Store {
	return campaign.NewStore(cfg.RetryPolicy())
}

// newPublisher builds the event publisher; without a Redis address events
// are discarded.
func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.Events == nil || cfg.Events.RedisAddr == "" {
		return events.NopPublisher{}, nil
	}
	return events.NewRedisPublisher(cfg.Events.RedisAddr, cfg.Events.Instance)
}

// thresholds extracts the quality thresholds from the validated config.
func thresholds(cfg *config.Config) pipeline.QualityThresholds {
	return pipeline.QualityThresholds{
		MinScore:        *cfg.Quality.MinScore,
		RequireApproval: *cfg.Quality.RequireApproval,
	}
}
