package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "skip <schedule-id>",
		Short: "Record a medication dose as deliberately skipped",
		Args:  cobra.ExactArgs(1),
		Run:   runSkip,
	}

	cmd.Flags().String("at", "", "Reminder time being answered, HH:MM (omit for flexible schedules)")

	RootCmd.AddCommand(cmd)
}

func runSkip(cmd *cobra.Command, args []string) {
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
	if err := a.treatment.Skip(cmd.Context(), args[0], at); err != nil {
		exitErr("skip", err)
	}
	fmt.Println("skip recorded")
}
