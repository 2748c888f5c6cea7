package watcher

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by ReadBatch once the Fake watcher has been
// closed and no more events are pending.
var ErrClosed = errors.New("watcher: closed")

// Fake is an in-memory Watcher used by discovery client tests (spec.md
// §8's end-to-end scenarios run against this implementation instead of
// real inotify, so tests don't depend on the host filesystem's inotify
// limits). Test code calls Emit to simulate a filesystem change; AddWatch
// only has to track which paths are watched so Emit can address events
// to the right descriptor.
type Fake struct {
	mu      sync.Mutex
	nextWd  Descriptor
	paths   map[Descriptor]string
	pending []Event
	notify  chan struct{}
	closed  bool
}

// NewFake creates an empty Fake watcher.
func NewFake() *Fake {
	return &Fake{
		paths:  make(map[Descriptor]string),
		notify: make(chan struct{}, 1),
	}
}

func (f *Fake) AddWatch(path string, mask EventMask) (Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	f.nextWd++
	wd := f.nextWd
	f.paths[wd] = path
	return wd, nil
}

func (f *Fake) RemoveWatch(d Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.paths, d)
	return nil
}

// Emit queues an event as if it arrived on descriptor d and wakes a
// pending ReadBatch.
func (f *Fake) Emit(d Descriptor, mask EventMask, name string) {
	f.mu.Lock()
	f.pending = append(f.pending, Event{Descriptor: d, Mask: mask, Name: name})
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Paths returns a snapshot of every path currently watched, keyed by
// descriptor. Used by tests asserting on watch-count deltas.
func (f *Fake) Paths() map[Descriptor]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Descriptor]string, len(f.paths))
	for wd, p := range f.paths {
		out[wd] = p
	}
	return out
}

// DescriptorFor returns the descriptor currently watching path, or 0 if
// none does.
func (f *Fake) DescriptorFor(path string) Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	for wd, p := range f.paths {
		if p == path {
			return wd
		}
	}
	return 0
}

func (f *Fake) ReadBatch(ctx context.Context) ([]Event, error) {
	for {
		f.mu.Lock()
		if len(f.pending) > 0 {
			events := f.pending
			f.pending = nil
			f.mu.Unlock()
			return events, nil
		}
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.notify:
		}
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}
