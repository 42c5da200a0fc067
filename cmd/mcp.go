package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juniperkb/juniper/internal/mcp"
	"github.com/juniperkb/juniper/internal/rag"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent and knowledge tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		server, err := mcp.NewServer(mcp.Config{
			Name:      "juniper",
			Version:   Version,
			Registry:  a.Registry,
			Engine:    a.Engine,
			Extractor: a.Extract,
			AskDefaults: rag.AskOptions{
				TopK:            a.Config.TopK,
				MinScore:        a.Config.MinScore,
				MaxPromptChunks: a.Config.MaxPromptChunks,
			},
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		return server.RunStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
