package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/commgmt/internal/uidpid"
)

var registryDumpCmd = &cobra.Command{
	Use:   "registry-dump",
	Args:  cobra.NoArgs,
	Short: "Print every non-empty slot of the UID/PID registry",
	RunE:  runRegistryDump,
}

func runRegistryDump(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	printed := 0
	for i := 0; i < rt.Registry.Capacity(); i++ {
		status, uid, pid := rt.Registry.StatusOf(i)
		if status == uidpid.Unused {
			continue
		}
		fmt.Printf("slot=%d status=%s uid=%d pid=%d\n", i, statusName(status), uid, pid)
		printed++
	}
	if printed == 0 {
		fmt.Println("registry is empty")
	}
	return nil
}

func statusName(s uidpid.Status) string {
	switch s {
	case uidpid.Used:
		return "used"
	case uidpid.Updating:
		return "updating"
	default:
		return "unused"
	}
}
