package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agents and their knowledge stores",
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new agent with an empty knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		created, err := a.Registry.Create(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created agent %q (%s)\n", created.Name, created.ID)
		return nil
	},
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		agents := a.Registry.List()
		if len(agents) == 0 {
			fmt.Println("No agents yet. Create one with: juniper agents create <name>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tCREATED")
		for _, ag := range agents {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ag.Name, ag.ID, ag.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete [agent]",
	Short: "Delete an agent and all of its knowledge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		ag, err := a.Registry.Resolve(args[0])
		if err != nil {
			return err
		}
		if err := a.Registry.Delete(ag.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted agent %q\n", ag.Name)
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsCreateCmd, agentsListCmd, agentsDeleteCmd)
	rootCmd.AddCommand(agentsCmd)
}
