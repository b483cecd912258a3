package workspace

import "github.com/spf13/cobra"

// Actions defines the workspace-scoped intents. One handler per intent,
// composed from the VM controller, registry, sync engine and mount manager.
type Actions interface {
	Connect(cmd *cobra.Command, args []string) error
	Push(cmd *cobra.Command, args []string) error
	Fetch(cmd *cobra.Command, args []string) error
	List(cmd *cobra.Command, args []string) error
	Clean(cmd *cobra.Command, args []string) error
	CleanAll(cmd *cobra.Command, args []string) error
}

// Commands builds the workspace command set.
func Commands(h Actions) []*cobra.Command {
	connectCmd := &cobra.Command{
		Use:   "connect [branch] [-- command...]",
		Short: "Open a session in the workspace for a branch (provisioning VM and workspace on first use)",
		Args:  cobra.ArbitraryArgs,
		RunE:  h.Connect,
	}
	// Resource flags only take effect on the invocation that first creates
	// the VM; afterwards they are ignored with a warning.
	connectCmd.Flags().String("memory", "", "VM memory (first creation only)")
	connectCmd.Flags().Int("cpus", 0, "VM CPUs (first creation only)")
	connectCmd.Flags().String("disk", "", "VM disk size (first creation only)")
	connectCmd.Flags().String("credentials", "", "credentials file injected at VM creation")

	pushCmd := &cobra.Command{
		Use:   "push BRANCH",
		Short: "Push a branch from the host repo into its workspace",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Push,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch BRANCH",
		Short: "Fetch a branch from its workspace back into the host repo",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Fetch,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workspaces in the VM",
		RunE:    h.List,
	}
	listCmd.Flags().Bool("dirty", false, "also report uncommitted changes per workspace")

	cleanCmd := &cobra.Command{
		Use:   "clean BRANCH|WORKSPACE",
		Short: "Remove one workspace (warns when it has uncommitted changes)",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Clean,
	}

	cleanAllCmd := &cobra.Command{
		Use:   "clean-all",
		Short: "Remove all workspaces",
		RunE:  h.CleanAll,
	}

	return []*cobra.Command{connectCmd, pushCmd, fetchCmd, listCmd, cleanCmd, cleanAllCmd}
}
