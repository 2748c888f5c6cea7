//go:build linux

package watcher

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inotifyEventHeaderSize is the fixed-size prefix of struct inotify_event
// preceding its variable-length name, matching the layout golang.org/x/sys/unix
// exposes as unix.InotifyEvent.
const inotifyEventHeaderSize = unix.SizeofInotifyEvent

// Inotify is the production Watcher, built directly on
// golang.org/x/sys/unix raw inotify syscalls -- the same style the pack
// uses for other low-level Linux syscall work (nestybox-sysbox-fs's
// seccomp package wraps unix.* calls directly rather than through a
// higher-level wrapper library).
type Inotify struct {
	fd int

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewInotify opens a new inotify instance in non-blocking mode so that
// Close can unblock a pending ReadBatch.
func NewInotify() (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("watcher: inotify_init1: %w", err)
	}
	return &Inotify{fd: fd, closeCh: make(chan struct{})}, nil
}

func toInotifyMask(mask EventMask) uint32 {
	var out uint32
	if mask&Create != 0 {
		out |= unix.IN_CREATE
	}
	if mask&Delete != 0 {
		out |= unix.IN_DELETE
	}
	return out
}

// AddWatch installs a watch for path with the requested mask.
func (w *Inotify) AddWatch(path string, mask EventMask) (Descriptor, error) {
	wd, err := unix.InotifyAddWatch(w.fd, path, toInotifyMask(mask))
	if err != nil {
		return 0, err
	}
	return Descriptor(wd), nil
}

// RemoveWatch removes a previously installed watch.
func (w *Inotify) RemoveWatch(d Descriptor) error {
	if _, err := unix.InotifyRmWatch(w.fd, uint32(d)); err != nil && err != unix.EINVAL {
		return err
	}
	return nil
}

// ReadBatch blocks (via poll on the inotify fd) until at least one event
// is available, ctx is cancelled, or Close is called, then decodes the
// events returned by one read into a buffer of 64 event headers' size.
func (w *Inotify) ReadBatch(ctx context.Context) ([]Event, error) {
	buf := make([]byte, 64*inotifyEventHeaderSize)

	for {
		pfds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfds, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("watcher: poll: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.closeCh:
			return nil, fmt.Errorf("watcher: closed")
		default:
		}
		if n == 0 {
			continue
		}

		read, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("watcher: read: %w", err)
		}
		return decodeEvents(buf[:read]), nil
	}
}

func decodeEvents(buf []byte) []Event {
	var events []Event
	offset := 0
	for offset+inotifyEventHeaderSize <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + inotifyEventHeaderSize
		nameEnd := nameStart + int(raw.Len)
		if nameEnd > len(buf) {
			break
		}
		name := ""
		if raw.Len > 0 {
			name = nullTerminatedString(buf[nameStart:nameEnd])
		}

		var mask EventMask
		if raw.Mask&unix.IN_CREATE != 0 {
			mask |= Create
		}
		if raw.Mask&unix.IN_DELETE != 0 {
			mask |= Delete
		}
		if raw.Mask&unix.IN_IGNORED != 0 {
			mask |= Ignored
		}
		if raw.Mask&unix.IN_Q_OVERFLOW != 0 {
			mask |= QueueOverflow
		}
		if raw.Mask&unix.IN_ISDIR != 0 {
			mask |= IsDir
		}

		events = append(events, Event{
			Descriptor: Descriptor(raw.Wd),
			Mask:       mask,
			Name:       name,
		})
		offset = nameEnd
	}
	return events
}

func nullTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Close releases the inotify file descriptor and unblocks any pending
// ReadBatch.
func (w *Inotify) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = unix.Close(w.fd)
	})
	return err
}
