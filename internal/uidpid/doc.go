package uidpid

// Memory ordering: spec.md §9 asks that the Used publish
// release-synchronize with a reader's Used observation, so that the pid
// field written before the publish is visible afterwards. Go's
// sync/atomic operations on Uint64/Int32 are sequentially consistent,
// which is strictly stronger than acquire/release -- so this
// requirement holds by construction and needs no explicit fence here.
//
// Lock-freedom: spec.md §5 requires the packed key's atomic type be
// always-lock-free. Go has no portable "is this lock-free"
// introspection equivalent to C++'s atomic<T>::is_always_lock_free, so
// this package is only built for architectures where uint64 atomics are
// known lock-free (see uidpid_supported.go).
