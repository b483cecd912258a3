package vm

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/warren/cmd/core"
	"github.com/projecteru2/warren/mount"
	"github.com/projecteru2/warren/types"
)

type Handler struct {
	cmdcore.BaseHandler
}

// Status prints the derived VM state. It never provisions anything.
func (h Handler) Status(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}

	st, err := ctrl.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "State:\t%s\n", st.State)
	if st.Resources != nil {
		fmt.Fprintf(w, "Memory:\t%s\n", cmdcore.FormatSize(st.Resources.Memory))
		fmt.Fprintf(w, "CPUs:\t%d\n", st.Resources.CPUs)
		fmt.Fprintf(w, "Disk:\t%s\n", cmdcore.FormatSize(st.Resources.Disk))
	}
	if st.CreatedAt != nil {
		fmt.Fprintf(w, "Created:\t%s\n", st.CreatedAt.Local().Format(time.DateTime))
	}
	if st.Endpoint != nil {
		fmt.Fprintf(w, "Endpoint:\t%s@%s:%d\n", st.Endpoint.User, st.Endpoint.Host, st.Endpoint.Port)
	}
	if st.State == types.VMStateRunning {
		fmt.Fprintf(w, "Mount:\t%s\n", conf.MountDir())
	}
	return w.Flush()
}

// Destroy tears down the VM. Everything inside it is lost, so it prompts
// unless --force is given or stdin is not interactive.
func (h Handler) Destroy(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		fmt.Fprintf(cmd.OutOrStdout(), "This destroys the VM and every workspace inside it. Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	if err := ctrl.Destroy(ctx, mount.NewManager(conf, nil)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "VM destroyed")
	return nil
}
