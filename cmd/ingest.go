package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	ingestText     string
	ingestSource   string
	ingestCrawl    bool
	ingestMaxPages int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [agent] [file-or-url]",
	Short: "Train an agent from a file, URL or raw text",
	Long: `Ingest indexes source material into an agent's knowledge store.

The second argument is a local file path or an http(s) URL. Raw text can
be supplied instead with --text, in which case --source names the source
identifier it is filed under. Re-ingesting a source replaces its previous
chunks atomically.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "raw text to ingest instead of a file or URL")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source id for --text ingestion")
	ingestCmd.Flags().BoolVar(&ingestCrawl, "crawl", false, "follow same-host links from the start URL")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", 0, "page cap for --crawl (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(ctx, a)

	ag, store, err := a.AgentStore(args[0])
	if err != nil {
		return err
	}

	// Raw text mode.
	if ingestText != "" {
		if ingestSource == "" {
			return fmt.Errorf("--source is required with --text")
		}
		n, err := a.Engine.Ingest(ctx, store, ingestSource, ingestText)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d chunks from %q into agent %q\n", n, ingestSource, ag.Name)
		return nil
	}

	if len(args) < 2 {
		return fmt.Errorf("a file path or URL is required unless --text is given")
	}
	target := args[1]

	if isURL(target) {
		if ingestCrawl {
			maxPages := ingestMaxPages
			if maxPages <= 0 {
				maxPages = a.Config.CrawlMaxPages
			}
			pages, err := a.Extract.Crawl(ctx, target, maxPages)
			if err != nil {
				return err
			}
			total := 0
			for _, p := range pages {
				n, err := a.Engine.Ingest(ctx, store, p.URL, p.Text)
				if err != nil {
					return fmt.Errorf("ingesting %s: %w", p.URL, err)
				}
				total += n
			}
			fmt.Printf("Crawled %d pages, indexed %d chunks into agent %q\n", len(pages), total, ag.Name)
			return nil
		}

		text, err := a.Extract.FromURL(ctx, target)
		if err != nil {
			return err
		}
		n, err := a.Engine.Ingest(ctx, store, target, text)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d chunks from %s into agent %q\n", n, target, ag.Name)
		return nil
	}

	text, err := a.Extract.FromFile(target)
	if err != nil {
		return err
	}
	n, err := a.Engine.Ingest(ctx, store, target, text)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d chunks from %s into agent %q\n", n, target, ag.Name)
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
