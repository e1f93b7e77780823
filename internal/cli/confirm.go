package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "confirm <schedule-id>",
		Short: "Log a treatment as given",
		Args:  cobra.ExactArgs(1),
		Run:   runConfirm,
	}

	cmd.Flags().String("at", "", "Reminder time being answered, HH:MM (omit for flexible schedules)")

	RootCmd.AddCommand(cmd)
}

func runConfirm(cmd *cobra.Command, args []string) {
	atValue, _ := cmd.Flags().GetString("at")

	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	at, err := parseAtFlag(atValue, a.cfg.Location)
	if err != nil {
		exitErr("parse --at", err)
	}

	if err := a.treatment.Load(cmd.Context()); err != nil {
		exitErr("load treatments", err)
	}
	if err := a.treatment.Confirm(cmd.Context(), args[0], at); err != nil {
		exitErr("confirm", err)
	}
	fmt.Println("logged")
}
