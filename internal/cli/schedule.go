package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
)

func init() {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage treatment schedules",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the pet's treatment schedules",
		Run:   runScheduleList,
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a treatment schedule",
		Run:   runScheduleAdd,
	}
	addCmd.Flags().String("kind", "medication", "Schedule kind: medication or fluid-therapy")
	addCmd.Flags().String("name", "", "Medication name")
	addCmd.Flags().Float64("dosage", 0, "Target dosage per administration")
	addCmd.Flags().String("unit", "", "Dosage unit, e.g. pill or mg")
	addCmd.Flags().String("strength", "", "Medication strength, e.g. 2.5mg")
	addCmd.Flags().Float64("volume", 0, "Fluid volume per session in mL")
	addCmd.Flags().String("times", "", "Comma-separated reminder times, e.g. 08:00,20:00 (omit for a flexible medication)")

	removeCmd := &cobra.Command{
		Use:   "remove <schedule-id>",
		Short: "Delete a treatment schedule",
		Args:  cobra.ExactArgs(1),
		Run:   runScheduleRemove,
	}

	scheduleCmd.AddCommand(listCmd, addCmd, removeCmd)
	RootCmd.AddCommand(scheduleCmd)
}

func runScheduleList(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	schedules, err := a.schedules.ListSchedules(cmd.Context())
	if err != nil {
		exitErr("list schedules", err)
	}
	if len(schedules) == 0 {
		fmt.Println("no schedules configured")
		return
	}

	for _, s := range schedules {
		status := "active"
		if !s.Active {
			status = "inactive"
		}
		times := "flexible"
		if len(s.ReminderTimes) > 0 {
			parts := make([]string, 0, len(s.ReminderTimes))
			for _, tod := range s.ReminderTimes {
				parts = append(parts, tod.String())
			}
			times = strings.Join(parts, ", ")
		}
		switch s.Kind {
		case application.TreatmentKindMedication:
			fmt.Printf("%s  %s  %g %s  %s  (%s)\n", s.ID, s.MedicationName, s.TargetDosage, s.DosageUnit, times, status)
		case application.TreatmentKindFluid:
			fmt.Printf("%s  fluids  %g mL/session  %s  (%s)\n", s.ID, s.VolumePerSession, times, status)
		}
	}
}

func runScheduleAdd(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	name, _ := cmd.Flags().GetString("name")
	dosage, _ := cmd.Flags().GetFloat64("dosage")
	unit, _ := cmd.Flags().GetString("unit")
	strength, _ := cmd.Flags().GetString("strength")
	volume, _ := cmd.Flags().GetFloat64("volume")
	timesValue, _ := cmd.Flags().GetString("times")

	var times []application.TimeOfDay
	if timesValue != "" {
		for _, part := range strings.Split(timesValue, ",") {
			tod, err := application.ParseTimeOfDay(part)
			if err != nil {
				exitErr("parse --times", err)
			}
			times = append(times, tod)
		}
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	created, err := a.schedules.CreateSchedule(cmd.Context(), application.ScheduleInput{
		Kind:             application.TreatmentKind(kind),
		Active:           true,
		ReminderTimes:    times,
		MedicationName:   name,
		TargetDosage:     dosage,
		DosageUnit:       unit,
		Strength:         strength,
		VolumePerSession: volume,
	})
	if err != nil {
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			for field, message := range vErr.FieldErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", field, message)
			}
		}
		exitErr("create schedule", err)
	}
	fmt.Printf("created %s\n", created.ID)
}

func runScheduleRemove(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	if err := a.schedules.DeleteSchedule(cmd.Context(), args[0]); err != nil {
		exitErr("remove schedule", err)
	}
	fmt.Println("removed")
}
