// Package knowncache implements the known-instance container of
// spec.md §3: a set of fully-resolved instances keyed by
// (service_id, instance_id), queried by enriched identifier (exact
// match or any-instance match).
package knowncache

import "github.com/jihwankim/commgmt/internal/identifier"

type key struct {
	service  identifier.ServiceID
	instance identifier.InstanceID
}

// Container is a set of known instances at one quality level.
type Container struct {
	instances map[key]struct{}
}

// New returns an empty Container.
func New() *Container {
	return &Container{instances: make(map[key]struct{})}
}

// Insert adds (service, instance) to the set.
func (c *Container) Insert(service identifier.ServiceID, instance identifier.InstanceID) {
	c.instances[key{service, instance}] = struct{}{}
}

// Remove removes (service, instance) from the set, if present.
func (c *Container) Remove(service identifier.ServiceID, instance identifier.InstanceID) {
	delete(c.instances, key{service, instance})
}

// Contains reports whether (service, instance) is known.
func (c *Container) Contains(service identifier.ServiceID, instance identifier.InstanceID) bool {
	_, ok := c.instances[key{service, instance}]
	return ok
}

// Merge adds every instance in other to c.
func (c *Container) Merge(other *Container) {
	for k := range other.instances {
		c.instances[k] = struct{}{}
	}
}

// Len returns the number of known instances.
func (c *Container) Len() int { return len(c.instances) }

// Instance identifies one fully-resolved known instance.
type Instance struct {
	Service  identifier.ServiceID
	Instance identifier.InstanceID
}

// GetKnownHandles returns every known instance matching the request
// enriched, honoring exact match or any-instance match.
func (c *Container) GetKnownHandles(enriched identifier.Enriched) []Instance {
	var out []Instance
	for k := range c.instances {
		if enriched.HasInstance && enriched.Instance != k.instance {
			continue
		}
		if enriched.Service != k.service {
			continue
		}
		out = append(out, Instance{Service: k.service, Instance: k.instance})
	}
	return out
}

// Equal reports whether c and other contain the same set of instances.
// Used by the discovery client to decide whether a known-instance set
// changed since the last callback dispatch (spec.md §4.5 step 6).
func (c *Container) Equal(other *Container) bool {
	if len(c.instances) != len(other.instances) {
		return false
	}
	for k := range c.instances {
		if _, ok := other.instances[k]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of c.
func (c *Container) Clone() *Container {
	clone := New()
	for k := range c.instances {
		clone.instances[k] = struct{}{}
	}
	return clone
}
