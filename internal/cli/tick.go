package cli

import (
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single evaluation sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Tick(cmd.Context())
	},
}
