//go:build linux

package uidpid

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sharedTable keeps the mmap'd region alive alongside the Table so it
// can be unmapped on Close.
type sharedTable struct {
	Table
	mapping []byte
	file    *os.File
}

// NewShared constructs a Table backed by a file (conventionally under
// /dev/shm) mmap'd MAP_SHARED, so that the same entry layout this
// package's lock-free algorithm depends on is visible identically to
// every process that maps the file. The algorithm in RegisterPid is
// unchanged from the in-process New(capacity) case -- only the backing
// store differs, the same way the original's register_pid_fake.h swaps
// the backing store under the production algorithm for tests.
func NewShared(path string, capacity int) (*Table, func() error, error) {
	size := capacity * int(unsafe.Sizeof(entry{}))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("uidpid: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("uidpid: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("uidpid: mmap %s: %w", path, err)
	}

	entries := unsafe.Slice((*entry)(unsafe.Pointer(&data[0])), capacity)
	st := &sharedTable{
		Table:   Table{entries: entries, retries: DefaultAcquireRetries},
		mapping: data,
		file:    f,
	}

	closeFn := func() error {
		if err := unix.Munmap(st.mapping); err != nil {
			st.file.Close()
			return err
		}
		return st.file.Close()
	}
	return &st.Table, closeFn, nil
}
