// Package flagfile implements the filesystem conventions of spec.md
// §4.3: the path layout under the discovery root, and the RAII-
// equivalent handle whose Release removes the flag file it created.
package flagfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jihwankim/commgmt/internal/identifier"
)

// Disambiguator distinguishes successive offers of the same instance by
// the same (possibly restarted) provider process. It is seeded from the
// wall clock (time.Now().UnixNano()) when created and then incremented
// monotonically; the seed is not a monotonic (steady) clock reading.
type Disambiguator struct {
	next atomic.Uint64
}

// NewDisambiguatorSeed creates a per-process Disambiguator seeded from
// the current wall-clock time in nanoseconds since the Unix epoch.
func NewDisambiguatorSeed() *Disambiguator {
	d := &Disambiguator{}
	d.next.Store(uint64(time.Now().UnixNano()))
	return d
}

// Next returns the next disambiguator value for this process.
func (d *Disambiguator) Next() uint64 {
	return d.next.Add(1)
}

// ServiceDir returns {root}/{service_id}/.
func ServiceDir(root string, service identifier.ServiceID) string {
	return filepath.Join(root, strconv.FormatUint(uint64(service), 10))
}

// InstanceDir returns {root}/{service_id}/{instance_id}/.
func InstanceDir(root string, service identifier.ServiceID, instance identifier.InstanceID) string {
	return filepath.Join(ServiceDir(root, service), strconv.FormatUint(uint64(instance), 10))
}

func qualityTag(q identifier.Quality) string {
	return q.String()
}

// FlagFilePath returns {instance_dir}/{quality_tag}_{disambiguator}.
func FlagFilePath(root string, service identifier.ServiceID, instance identifier.InstanceID, q identifier.Quality, disambiguator uint64) string {
	name := fmt.Sprintf("%s_%d", qualityTag(q), disambiguator)
	return filepath.Join(InstanceDir(root, service, instance), name)
}

// Handle owns one created flag file. Release removes it; Release is
// idempotent and safe to call from any exit path, mirroring the
// create/remove pair the teacher's emergency.Controller uses for its
// stop file (CreateStopFile/RemoveStopFile).
type Handle struct {
	path     string
	released bool
}

// Make creates the instance directory (if absent) and then the flag
// file itself, returning a Handle whose Release removes it.
func Make(root string, service identifier.ServiceID, instance identifier.InstanceID, q identifier.Quality, disambiguator uint64) (*Handle, error) {
	dir := InstanceDir(root, service, instance)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flagfile: create instance dir %s: %w", dir, err)
	}

	path := FlagFilePath(root, service, instance, q, disambiguator)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flagfile: create %s: %w", path, err)
	}
	f.Close()

	return &Handle{path: path}, nil
}

// Path returns the flag file's path.
func (h *Handle) Path() string { return h.path }

// Release removes the flag file. Calling it more than once is a no-op.
func (h *Handle) Release() error {
	if h.released {
		return nil
	}
	h.released = true
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("flagfile: remove %s: %w", h.path, err)
	}
	return nil
}

// Exists reports whether a flag file for (service, instance, q) exists,
// regardless of which disambiguator produced it.
func Exists(root string, service identifier.ServiceID, instance identifier.InstanceID, q identifier.Quality) (bool, error) {
	dir := InstanceDir(root, service, instance)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	tag := qualityTag(q)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), tag+"_") {
			return true, nil
		}
	}
	return false, nil
}

// ConvertFromStringToInstanceID parses a numeric instance id from a
// filename component. Failure is a normal error, not fatal (spec.md
// §4.3).
func ConvertFromStringToInstanceID(s string) (identifier.InstanceID, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("flagfile: not an instance id: %q: %w", s, err)
	}
	return identifier.InstanceID(n), nil
}

// ParseQualityTypeFromString prefix-matches the known quality tags
// (followed by "_") against a flag-file name. An unrecognized name maps to
// identifier.Invalid.
func ParseQualityTypeFromString(filename string) identifier.Quality {
	switch {
	case strings.HasPrefix(filename, "ASIL_B_"):
		return identifier.AsilB
	case strings.HasPrefix(filename, "ASIL_QM_"):
		return identifier.AsilQM
	default:
		return identifier.Invalid
	}
}
