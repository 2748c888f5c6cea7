package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Args:  cobra.NoArgs,
	Short: "Perform a one-shot lookup of currently offered instances",
	RunE:  runFind,
}

func init() {
	instanceFlags(findCmd, false)
}

func runFind(cmd *cobra.Command, args []string) error {
	enriched, err := enrichedFromFlags(cmd)
	if err != nil {
		return err
	}

	rt, err := bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	instances, cerr := rt.Discovery.FindService(enriched)
	if cerr != nil {
		return fmt.Errorf("find service: %w", cerr)
	}
	if len(instances) == 0 {
		fmt.Println("no matching instances offered")
		return nil
	}
	for _, inst := range instances {
		fmt.Printf("%d/%d\n", inst.Service, inst.Instance)
	}
	return nil
}
