// Package watcher abstracts the inotify-like filesystem watcher that
// spec.md §4.5/§6 describes: a bounded-size batch of Create/Delete/
// Ignored/QueueOverflow events per read, keyed by an opaque descriptor.
package watcher

import "context"

// Descriptor is the opaque handle identifying one subscribed path,
// returned by AddWatch.
type Descriptor uint32

// EventMask bits, matching spec.md §6's required set.
type EventMask uint32

const (
	Create EventMask = 1 << iota
	Delete
	Ignored
	QueueOverflow
	IsDir
)

// Event is one filesystem-change notification.
type Event struct {
	Descriptor Descriptor
	Mask       EventMask
	Name       string // affected child name, empty for self-events
}

// Watcher is the capability the discovery client and crawler depend on.
// Implementations are treated as a capability set, not an inheritance
// tree (spec.md §9 "Polymorphism").
type Watcher interface {
	// AddWatch installs a watch on path for the given mask and returns
	// its descriptor.
	AddWatch(path string, mask EventMask) (Descriptor, error)
	// RemoveWatch removes a previously installed watch. Removing an
	// already-removed descriptor is not an error.
	RemoveWatch(d Descriptor) error
	// ReadBatch blocks until at least one event is available or ctx is
	// done, then returns every event currently queued.
	ReadBatch(ctx context.Context) ([]Event, error)
	// Close releases the underlying watcher resource and unblocks any
	// in-flight ReadBatch.
	Close() error
}
