package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/commgmt/internal/identifier"
)

// instanceFlags attaches the --service/--instance/--quality flags
// shared by offer, find, and watch.
func instanceFlags(cmd *cobra.Command, requireInstance bool) {
	cmd.Flags().Uint16("service", 0, "service id")
	cmd.Flags().Uint16("instance", 0, "instance id")
	if !requireInstance {
		cmd.Flags().Bool("any-instance", false, "match any instance of --service")
	}
	cmd.Flags().String("quality", "ASIL_QM", "quality level: ASIL_B or ASIL_QM")
	cmd.MarkFlagRequired("service")
}

func enrichedFromFlags(cmd *cobra.Command) (identifier.Enriched, error) {
	service, _ := cmd.Flags().GetUint16("service")
	instance, _ := cmd.Flags().GetUint16("instance")
	qualityStr, _ := cmd.Flags().GetString("quality")

	quality := identifier.ParseQuality(qualityStr)
	if quality == identifier.Invalid {
		return identifier.Enriched{}, fmt.Errorf("invalid --quality %q: must be ASIL_B or ASIL_QM", qualityStr)
	}

	anyInstance := false
	if f := cmd.Flags().Lookup("any-instance"); f != nil {
		anyInstance, _ = cmd.Flags().GetBool("any-instance")
	}
	if anyInstance {
		return identifier.AnyInstance(identifier.ServiceID(service), quality), nil
	}
	return identifier.Specific(identifier.ServiceID(service), identifier.InstanceID(instance), quality), nil
}
