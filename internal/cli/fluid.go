package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "fluid [volume-ml]",
		Short: "Log a fluid therapy session",
		Long:  "Logs a subcutaneous fluid session. Without a volume the schedule's per-session target is used.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runFluid,
	}

	RootCmd.AddCommand(cmd)
}

func runFluid(cmd *cobra.Command, args []string) {
	var volume float64
	if len(args) == 1 {
		parsed, err := strconv.ParseFloat(args[0], 64)
		if err != nil || parsed <= 0 {
			exitErr("parse volume", fmt.Errorf("volume must be a positive number, got %q", args[0]))
		}
		volume = parsed
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	if err := a.treatment.Load(cmd.Context()); err != nil {
		exitErr("load treatments", err)
	}
	if err := a.treatment.LogFluid(cmd.Context(), volume); err != nil {
		exitErr("log fluids", err)
	}

	if state := a.treatment.State(); state.Fluid != nil {
		fmt.Printf("logged, %g mL still owed today\n", state.Fluid.RemainingVolume)
	} else {
		fmt.Println("logged, fluids done for today")
	}
}
