package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jihwankim/commgmt/internal/discovery"
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Args:  cobra.NoArgs,
	Short: "Offer a service instance and hold the flag file until interrupted",
	RunE:  runOffer,
}

func init() {
	instanceFlags(offerCmd, true)
}

func runOffer(cmd *cobra.Command, args []string) error {
	enriched, err := enrichedFromFlags(cmd)
	if err != nil {
		return err
	}

	rt, err := bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	if cerr := rt.Discovery.OfferService(enriched); cerr != nil {
		return fmt.Errorf("offer service: %w", cerr)
	}
	fmt.Printf("offering %s, press Ctrl-C to stop\n", enriched)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if cerr := rt.Discovery.StopOfferService(enriched, discovery.Both); cerr != nil {
		return fmt.Errorf("stop offer: %w", cerr)
	}
	fmt.Println("offer stopped")
	return nil
}
