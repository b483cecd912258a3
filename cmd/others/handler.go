package others

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/version"
)

type Handler struct {
	ConfProvider func() *config.Config
}

func (h Handler) Version(_ *cobra.Command, _ []string) error {
	fmt.Print(version.String())
	return nil
}
