package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/connectivity"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued sessions against the backend",
		Run:   runSync,
	}

	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd.Context())
	if err != nil {
		exitErr("start", err)
	}
	defer a.close()

	if a.monitor.Status() != connectivity.StateConnected {
		exitErr("sync", fmt.Errorf("backend is not reachable"))
	}

	pending, err := a.queue.Pending(cmd.Context())
	if err != nil {
		exitErr("inspect queue", err)
	}
	if pending == 0 {
		fmt.Println("nothing to sync")
		return
	}

	if err := a.treatment.Load(cmd.Context()); err != nil {
		exitErr("load treatments", err)
	}
	applied, err := a.queue.Drain(cmd.Context())
	if err != nil {
		exitErr(fmt.Sprintf("sync stopped after %d session(s)", applied), err)
	}
	fmt.Printf("synced %d session(s)\n", applied)
}
