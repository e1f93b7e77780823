package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's pending treatments",
		Run:   runStatus,
	}

	cmd.Flags().Bool("week", false, "Include the seven-day adherence rollup")

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	week, _ := cmd.Flags().GetBool("week")

	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	if err := a.treatment.Load(cmd.Context()); err != nil {
		exitErr("load treatments", err)
	}
	state := a.treatment.State()

	fmt.Printf("Pending treatments for %s (%s)\n", a.cfg.PetID, state.Date)
	if state.Err != nil {
		fmt.Printf("  warning: %s\n", state.Err.Message)
	}

	if len(state.Medications) == 0 && state.Fluid == nil {
		fmt.Println("  all done for today")
	}
	for _, med := range state.Medications {
		marker := " "
		if med.IsOverdue {
			marker = "!"
		}
		if med.Flexible {
			fmt.Printf("  %s %s  %g %s  (any time today)  [%s]\n", marker, med.Name, med.TargetDosage, med.DosageUnit, med.ScheduleID)
			continue
		}
		fmt.Printf("  %s %s  %g %s  at %s  [%s]\n", marker, med.Name, med.TargetDosage, med.DosageUnit, med.ScheduledTime.Format("15:04"), med.ScheduleID)
	}
	if state.Fluid != nil {
		marker := " "
		if state.Fluid.IsOverdue {
			marker = "!"
		}
		fmt.Printf("  %s fluids  %g mL remaining  [%s]\n", marker, state.Fluid.RemainingVolume, state.Fluid.ScheduleID)
	}

	today, err := a.cache.AdherenceToday(cmd.Context())
	if err != nil {
		exitErr("adherence", err)
	}
	fmt.Printf("\nToday: %d doses completed, %d skipped, %g mL fluids given\n",
		today.DosesCompleted, today.DosesSkipped, today.FluidVolumeGiven)

	if summary, err := a.cache.ForToday(cmd.Context()); err == nil {
		if names := summary.LoggedNamesToday(); len(names) > 0 {
			fmt.Printf("Logged today: %s\n", strings.Join(names, ", "))
		}
	}

	if pending, err := a.queue.Pending(cmd.Context()); err == nil && pending > 0 {
		fmt.Printf("%d session(s) waiting for sync\n", pending)
	}

	if week {
		days, err := a.cache.AdherenceWeek(cmd.Context(), time.Now())
		if err != nil {
			exitErr("weekly adherence", err)
		}
		fmt.Println("\nLast seven days:")
		for _, day := range days {
			fmt.Printf("  %s  %d completed, %d skipped, %g mL\n",
				day.Date, day.DosesCompleted, day.DosesSkipped, day.FluidVolumeGiven)
		}
	}
}
