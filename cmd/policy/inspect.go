package main

import (
	"fmt"
	"io"
	"os"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"

	"github.com/cartridge/rrc-policy/internal/weights"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <weights file>",
	Short: "List the tensors in a .pt, .pth or .json weights file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringSlice("section", nil, "Only read these top-level sections (e.g. _policy,_imitator)")
	inspectCmd.Flags().String("export", "", "Also write the tensors as a JSON weights file")
	inspectCmd.Flags().Bool("no-color", false, "Disable coloured output")
}

func runInspect(cmd *cobra.Command, args []string) error {
	sections, _ := cmd.Flags().GetStringSlice("section")
	export, _ := cmd.Flags().GetString("export")
	noColor, _ := cmd.Flags().GetBool("no-color")

	sd, err := weights.Load(args[0], sections...)
	if err != nil {
		return err
	}
	printTensors(os.Stdout, aurora.NewAurora(!noColor), sd)

	if export != "" {
		if err := weights.SaveJSON(export, sd); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", export)
	}
	return nil
}

func printTensors(w io.Writer, au aurora.Aurora, sd weights.StateDict) {
	total := 0
	for _, name := range sd.Names() {
		t := sd[name]
		total += t.NumElements()
		fmt.Fprintln(w, au.Cyan(fmt.Sprintf("%-48s", name)), au.Yellow(fmt.Sprint(t.Shape)), au.Green(t.NumElements()))
	}
	fmt.Fprintf(w, "%s %d tensors, %d parameters\n", au.Bold("total"), len(sd), total)
}
