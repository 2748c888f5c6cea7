// Package uidpid implements the lock-free UID->PID registry of spec.md
// §4.2: a fixed-capacity table that lets a provider detect a
// previously-crashed consumer by UID and garbage-collect its
// per-process resources, without ever taking a lock.
//
// The production backing store is a real shared-memory segment (see
// shm_linux.go); the algorithm itself only depends on entry being laid
// out identically regardless of backing store, so the same code path
// serves both single-process tests and a real multi-process deployment.
package uidpid

import (
	"sync/atomic"
)

// Status is the entry lifecycle state packed into the high 32 bits of
// entry.key.
type Status uint32

const (
	Unused Status = iota
	Used
	Updating
	StatusInvalid
)

// entry is a fixed-size record: a packed (status, uid) key, written
// only via atomic load/store/CAS, and a pid written only by the thread
// that owns the entry in Used state (or the transitioning thread while
// Updating). 16 bytes, naturally aligned.
type entry struct {
	key atomic.Uint64
	pid atomic.Int32
	_   [4]byte
}

func packKey(status Status, uid uint32) uint64 {
	return uint64(status)<<32 | uint64(uid)
}

func unpackKey(k uint64) (Status, uint32) {
	return Status(k >> 32), uint32(k)
}

// DefaultAcquireRetries is the acquire-pass retry bound, above the
// minimum of 50 that spec.md §4.2 requires ("scan up to a bounded
// number of retries (>= 50)").
const DefaultAcquireRetries = 64

// supportedArch is declared only in uidpid_supported.go; referencing it
// here makes the package fail to compile on any other architecture.
var _ = supportedArch

// Table is the UID->PID registry.
type Table struct {
	entries []entry
	retries int
}

// New constructs a Table with room for capacity consumers, backed by
// a plain Go slice. Use NewShared for a table backed by a real
// /dev/shm-mapped segment.
func New(capacity int) *Table {
	return &Table{
		entries: make([]entry, capacity),
		retries: DefaultAcquireRetries,
	}
}

// Capacity returns the table's fixed slot count.
func (t *Table) Capacity() int { return len(t.entries) }

// RegisterPid implements spec.md §4.2's two-pass algorithm: an update
// pass over existing Used/Updating entries for uid, then (if no match)
// an acquire pass over Unused entries. It returns the previous pid if
// uid was already mapped, the new pid on first registration, and
// ok==false if the table is full (all acquire attempts exhausted).
func (t *Table) RegisterPid(uid uint32, pid int32) (previous int32, ok bool) {
	// Update pass: find an entry already carrying this UID.
	for i := range t.entries {
		e := &t.entries[i]
		status, entryUID := unpackKey(e.key.Load())
		if entryUID != uid {
			continue
		}
		switch status {
		case Used:
			prev := e.pid.Load()
			e.pid.Store(pid)
			return prev, true
		case Updating:
			// A prior writer crashed mid-transition; take ownership,
			// overwrite pid, then publish Used.
			e.pid.Store(pid)
			e.key.Store(packKey(Used, uid))
			return pid, true
		}
	}

	// Acquire pass: claim the first Unused slot we can CAS.
	for attempt := 0; attempt < t.retries; attempt++ {
		for i := range t.entries {
			e := &t.entries[i]
			old := e.key.Load()
			status, oldUID := unpackKey(old)
			if status != Unused {
				continue
			}
			newKey := packKey(Updating, uid)
			if !e.key.CompareAndSwap(old, newKey) {
				continue
			}
			_ = oldUID
			e.pid.Store(pid)
			e.key.Store(packKey(Used, uid))
			return pid, true
		}
	}
	return 0, false
}

// StatusOf returns the (status, uid, pid) triple for slot i, for
// diagnostics (commgmtctl registry-dump) and tests. It performs no
// synchronization beyond the atomic loads themselves.
func (t *Table) StatusOf(i int) (status Status, uid uint32, pid int32) {
	status, uid = unpackKey(t.entries[i].key.Load())
	pid = t.entries[i].pid.Load()
	return
}

// seedForTest pre-seeds slot i directly, bypassing RegisterPid, for
// test scenarios that need a specific starting state (e.g. an entry
// stuck in Updating, or a table with no Unused slots left).
func (t *Table) seedForTest(i int, status Status, uid uint32, pid int32) {
	t.entries[i].key.Store(packKey(status, uid))
	t.entries[i].pid.Store(pid)
}
