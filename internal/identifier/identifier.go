// Package identifier holds the core data-model types of spec.md §3:
// ServiceID/InstanceID, the Quality level enum, the enriched instance
// identifier, and the opaque find-service handle.
package identifier

import "fmt"

// ServiceID identifies a service type.
type ServiceID uint16

// InstanceID identifies a concrete instance of a ServiceID.
type InstanceID uint16

// Quality is the ASIL level a flow is partitioned by.
type Quality uint8

const (
	// Invalid marks an unresolved or unparsed quality level.
	Invalid Quality = iota
	// AsilQM is the lower-criticality quality level.
	AsilQM
	// AsilB is the higher-criticality quality level. A provider
	// offering at AsilB also serves AsilQM consumers (spec.md §3).
	AsilB
)

func (q Quality) String() string {
	switch q {
	case AsilQM:
		return "ASIL_QM"
	case AsilB:
		return "ASIL_B"
	default:
		return "Invalid"
	}
}

// ParseQuality parses the two fixed quality tags used in flag-file
// names and configuration. Any other string maps to Invalid -- this is
// a normal (non-fatal) outcome.
func ParseQuality(s string) Quality {
	switch s {
	case "ASIL_B":
		return AsilB
	case "ASIL_QM":
		return AsilQM
	default:
		return Invalid
	}
}

// Enriched combines a service identity with an optional instance id, a
// quality level, and an opaque back-reference to the resolved
// configuration entry (spec.md §3). A nil ConfigRef is valid: crawl-only
// call sites that never touch configuration leave it unset.
type Enriched struct {
	Service     ServiceID
	Instance    InstanceID
	HasInstance bool // false == "find any" (spec.md glossary)
	Quality     Quality
	ConfigRef   any
}

// AnyInstance returns the enriched identifier for "find any instance of
// Service at Quality".
func AnyInstance(service ServiceID, quality Quality) Enriched {
	return Enriched{Service: service, Quality: quality}
}

// Specific returns the enriched identifier for one concrete instance.
func Specific(service ServiceID, instance InstanceID, quality Quality) Enriched {
	return Enriched{Service: service, Instance: instance, HasInstance: true, Quality: quality}
}

// ServiceLevel returns the enriched identifier with Quality forced to
// Invalid but the instance id (if any) preserved, used by the crawler to
// derive the service-level search path (spec.md §4.4 step 1).
func (e Enriched) ServiceLevel() Enriched {
	out := e
	out.Quality = Invalid
	return out
}

// Matches reports whether a fully-resolved candidate (service, instance,
// quality known) satisfies the request e, honoring "find any" (no
// instance id in e) and quality fall-through (a request at AsilQM is
// satisfied by a candidate offered at AsilQM even though it was created
// because the provider offered at AsilB -- that fall-through already
// happened at cache-population time, so Matches itself requires equal
// quality, except that a request at Invalid quality matches any).
func (e Enriched) Matches(service ServiceID, instance InstanceID, quality Quality) bool {
	if e.Service != service {
		return false
	}
	if e.HasInstance && e.Instance != instance {
		return false
	}
	if e.Quality != Invalid && e.Quality != quality {
		return false
	}
	return true
}

func (e Enriched) String() string {
	if e.HasInstance {
		return fmt.Sprintf("%d/%d@%s", e.Service, e.Instance, e.Quality)
	}
	return fmt.Sprintf("%d/*@%s", e.Service, e.Quality)
}

// Handle uniquely identifies a successful StartFindService registration
// until it is cancelled via StopFindService. It is opaque to callers.
type Handle uint64
