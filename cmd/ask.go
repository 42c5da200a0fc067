package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/juniperkb/juniper/internal/rag"
)

var (
	askTopK     int
	askMinScore float64
	askNoCite   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [agent] [question...]",
	Short: "Ask a question answered from an agent's knowledge",
	Long: `Ask retrieves the most relevant chunks from the agent's knowledge
store and streams a grounded answer. When nothing relevant is stored the
model is instructed to say so rather than invent an answer.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().Float64Var(&askMinScore, "min-score", 0, "minimum similarity for a chunk to qualify")
	askCmd.Flags().BoolVar(&askNoCite, "no-citations", false, "suppress the citation list")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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
	question := strings.Join(args[1:], " ")

	opts := rag.AskOptions{
		TopK:            a.Config.TopK,
		MinScore:        a.Config.MinScore,
		MaxPromptChunks: a.Config.MaxPromptChunks,
	}
	if askTopK > 0 {
		opts.TopK = askTopK
	}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = askMinScore
	}

	// Fragments go straight to stdout as they arrive.
	streamed := false
	ans, err := a.Engine.Ask(ctx, store, question, opts,
		func(_ context.Context, fragment string) error {
			streamed = true
			fmt.Print(fragment)
			return nil
		})
	if err != nil {
		if streamed {
			fmt.Println()
		}
		return err
	}
	if !streamed {
		fmt.Print(ans.Text)
	}
	fmt.Println()

	if !askNoCite && len(ans.Citations) > 0 {
		fmt.Printf("\nSources (%s):\n", ag.Name)
		for _, id := range ans.Citations {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}
