package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtuzov/emailmakers-sub004/internal/printer"
	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns in the campaigns directory",
	Long: `List every campaign found under the campaigns directory.

A directory counts as a campaign when it carries readable campaign
metadata; anything else is skipped silently. Use --json for
machine-readable output.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// listEntry is one row of list output.
type listEntry struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Phase     campaign.Phase `json:"phase"`
	Status    campaign.Status `json:"status"`
	RootPath  string         `json:"root_path"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return printer.FromError("Failed to load configuration", err)
	}

	store := newStore(cfg)

	entries, err := os.ReadDir(cfg.CampaignsDir)
	if err != nil && !os.IsNotExist(err) {
		return printer.Error("Failed to read campaigns directory", err.Error(), nil)
	}

	var rows []listEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		root := filepath.Join(cfg.CampaignsDir, e.Name())
		c, err := store.LoadMetadata(ctx, root)
		if err != nil {
			continue
		}
		rows = append(rows, listEntry{
			ID:        c.ID,
			Topic:     c.Topic,
			Phase:     c.Phase,
			Status:    c.Status,
			RootPath:  c.RootPath,
			UpdatedAt: c.UpdatedAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})

	if len(rows) == 0 {
		if listJSON {
			fmt.Println("[]")
		} else {
			printer.Println("No campaigns found.")
			printer.Println()
			printer.Println("Run 'emailmakers new --topic ...' to create one.")
		}
		return nil
	}

	if listJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printer.Printf("%-38s %-16s %-10s %-25s %s\n", "CAMPAIGN", "PHASE", "STATUS", "TOPIC", "UPDATED")
	for _, r := range rows {
		topic := r.Topic
		if len(topic) > 25 {
			topic = topic[:22] + "..."
		}
		printer.Printf("%-38s %-16s %-10s %-25s %s\n",
			r.ID, r.Phase, r.Status, topic, r.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
