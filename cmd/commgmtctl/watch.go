package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jihwankim/commgmt/internal/knowncache"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Args:  cobra.NoArgs,
	Short: "Start a live search and print the known-instance set as it changes",
	RunE:  runWatch,
}

func init() {
	instanceFlags(watchCmd, false)
}

func runWatch(cmd *cobra.Command, args []string) error {
	enriched, err := enrichedFromFlags(cmd)
	if err != nil {
		return err
	}

	rt, err := bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	print := func(instances []knowncache.Instance) {
		if len(instances) == 0 {
			fmt.Println("(no instances known)")
			return
		}
		for _, inst := range instances {
			fmt.Printf("known: %d/%d\n", inst.Service, inst.Instance)
		}
	}

	handle, cerr := rt.Discovery.StartFindService(enriched, print)
	if cerr != nil {
		return fmt.Errorf("start find service: %w", cerr)
	}
	fmt.Println("watching, press Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	rt.Discovery.StopFindService(handle)
	return nil
}
