package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cosim-bridge/eplusfmu/cosim/catalog"
)

var describeFMU string // Unpacked model directory

// describeCmd prints the variable catalog of a model.
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the identity and variables of an unpacked model",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadAdapterConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		md, err := catalog.Load(filepath.Join(describeFMU, cfg.Files.ModelDescription))
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printCatalog(cmd.OutOrStdout(), md)
	},
}

func printCatalog(w io.Writer, md *catalog.ModelDescription) {
	fmt.Fprintf(w, "model:   %s\n", md.ModelIdentifier)
	fmt.Fprintf(w, "guid:    %s\n", md.GUID)
	fmt.Fprintf(w, "fmi:     %s\n", md.FMIVersion)
	fmt.Fprintf(w, "inputs:  %d\noutputs: %d\n\n", md.NumInputs(), md.NumOutputs())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tDIR\tVR\tNAME\tDESCRIPTION")
	for i, v := range md.Inputs() {
		fmt.Fprintf(tw, "%d\tin\t%d\t%s\t%s\n", i, v.ValueReference, v.Name, v.Description)
	}
	for i, v := range md.Outputs() {
		fmt.Fprintf(tw, "%d\tout\t%d\t%s\t%s\n", i, v.ValueReference, v.Name, v.Description)
	}
	_ = tw.Flush()
}

func init() {
	describeCmd.Flags().StringVar(&describeFMU, "fmu", ".", "Unpacked model directory")
}
