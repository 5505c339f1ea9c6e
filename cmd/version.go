package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosim-bridge/eplusfmu/cosim"
)

// versionCmd prints the binary-interface identity of the adapter.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the platform name and FMI version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cosim.New(cosim.DefaultConfig())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "platform: %s\nfmi:      %s\n", a.PlatformName(), a.Version())
		return nil
	},
}
