package vm

import "github.com/spf13/cobra"

// Actions defines the VM lifecycle operations.
type Actions interface {
	Status(cmd *cobra.Command, args []string) error
	Destroy(cmd *cobra.Command, args []string) error
}

// Commands builds the VM lifecycle command set.
func Commands(h Actions) []*cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show VM state, resources and endpoint",
		RunE:  h.Status,
	}

	destroyCmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down the VM and all workspaces inside it",
		RunE:  h.Destroy,
	}
	destroyCmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")

	return []*cobra.Command{statusCmd, destroyCmd}
}
