package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtuzov/emailmakers-sub004/internal/events"
	"github.com/rtuzov/emailmakers-sub004/internal/printer"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream campaign events in real time",
	Long: `Subscribe to the Redis campaign event stream and print events as
they arrive. Requires events.redis_addr in the configuration (or
EMAILMAKERS_REDIS_ADDR). Press Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return printer.FromError("Failed to load configuration", err)
	}

	if cfg.Events == nil || cfg.Events.RedisAddr == "" {
		return printer.Error("Event stream not configured",
			"The watch command needs a Redis address.",
			[]string{
				"Set events.redis_addr in emailmakers.yml",
				"Set the EMAILMAKERS_REDIS_ADDR environment variable",
			})
	}

	sub, err := events.Subscribe(ctx, cfg.Events.RedisAddr, cfg.Events.Instance)
	if err != nil {
		return printer.FromError("Failed to subscribe", err)
	}
	defer sub.Close()

	printer.Step("Watching campaign events on %s (instance %q). Ctrl+C to stop.\n",
		cfg.Events.RedisAddr, cfg.Events.Instance)

	for {
		select {
		case <-ctx.Done():
			printer.Println()
			printer.Println("Stopped.")
			return nil
		case err := <-sub.Errors():
			if err != nil {
				printer.Warning("%v\n", err)
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev events.Event) {
	ts := time.UnixMilli(ev.TimestampMs).Format("15:04:05")
	switch ev.Type {
	case events.TypeCampaignCreated:
		printer.Printf("%s  %s  created\n", ts, ev.CampaignID)
	case events.TypeStageCompleted:
		printer.Printf("%s  %s  %s complete, phase now %s\n", ts, ev.CampaignID, ev.Stage, printer.PhaseLabel(ev.Phase))
	case events.TypeCampaignCompleted:
		printer.Success("%s  %s  completed\n", ts, ev.CampaignID)
	case events.TypeCampaignFailed:
		printer.Warning("%s  %s  failed at %s: %s\n", ts, ev.CampaignID, ev.Stage, ev.Message)
	default:
		printer.Printf("%s  %s  %s\n", ts, ev.CampaignID, ev.Type)
	}
}
