package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and prune an agent's ingested sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list [agent]",
	Short: "List the sources an agent has been trained on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		sources := store.Sources()
		if len(sources) == 0 {
			fmt.Printf("Agent %q has no knowledge yet.\n", ag.Name)
			return nil
		}
		for _, s := range sources {
			fmt.Println(s)
		}
		return nil
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [agent] [source]",
	Short: "Remove every chunk ingested under a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if err := a.Engine.RemoveSource(ctx, store, args[1]); err != nil {
			return err
		}
		fmt.Printf("Removed %q from agent %q\n", args[1], ag.Name)
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd, sourcesRemoveCmd)
	rootCmd.AddCommand(sourcesCmd)
}
