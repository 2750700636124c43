package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/render"
)

func importFeedCmd() *cobra.Command {
	var (
		name     string
		category string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "import-feed <file>",
		Short: "Import an RSS or Atom document as news articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if dryRun {
				items, err := feed.Parse(bytes.NewReader(data))
				if err != nil {
					return err
				}
				pretty, err := render.Prettify(data)
				if err == nil && len(pretty) > 0 {
					fmt.Fprintln(out, string(pretty))
				}
				for _, item := range items {
					fmt.Fprintf(out, "%s\t%s\n", feed.Slugify(item.Title), item.Link)
				}
				fmt.Fprintf(out, "%d items\n", len(items))
				return nil
			}

			svc, err := openService(newLogger())
			if err != nil {
				return err
			}
			defer svc.Close()

			cfg := feed.Config{Name: name, Category: category}
			for _, f := range svc.Config().Feeds {
				if f.Name == name {
					cfg = f
					if category != "" {
						cfg.Category = category
					}
					break
				}
			}

			result, err := svc.ImportFeed(cmd.Context(), cfg, bytes.NewReader(data))
			if err != nil {
				return err
			}
			// ImportFeed queues its log entry; a cancelled context makes WriteToDB drain and return.
			drain, cancel := context.WithCancel(cmd.Context())
			cancel()
			svc.WriteToDB(drain)

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&name, "name", "manual", "feed name, matching a configured feed to use its rules")
	cmd.Flags().StringVar(&category, "category", "", "article category (default: the feed's, or racing)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the parsed document without importing it")
	return cmd
}
