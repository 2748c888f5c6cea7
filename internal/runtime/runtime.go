//go:build linux

// Package runtime owns the process-wide singleton that spec.md §9
// describes: one Service-Discovery Client and one UID/PID registry,
// constructed once from validated configuration and shared by every
// proxy/skeleton binding in the process. It depends on the Linux-only
// inotify watcher and mmap'd shared-memory table, so it carries the
// same build tag they do.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/jihwankim/commgmt/internal/config"
	"github.com/jihwankim/commgmt/internal/discovery"
	"github.com/jihwankim/commgmt/internal/identifier"
	"github.com/jihwankim/commgmt/internal/metrics"
	"github.com/jihwankim/commgmt/internal/telemetry"
	"github.com/jihwankim/commgmt/internal/uidpid"
	"github.com/jihwankim/commgmt/internal/watcher"
)

// Runtime bundles the per-process discovery client and UID/PID table.
type Runtime struct {
	Discovery *discovery.Client
	Registry  *uidpid.Table
	Config    *config.Config
	Metrics   *metrics.Collector

	closeRegistry func() error
	cancel        context.CancelFunc
}

var (
	instance *Runtime
	once     sync.Once
	initErr  error
)

// Init constructs the singleton Runtime from cfg. Only the first call
// takes effect; subsequent calls log a warning and return the original
// error, if any, without reconstructing anything (spec.md §9 "single
// instantiation").
func Init(cfg *config.Config, log *telemetry.Logger) error {
	first := false
	once.Do(func() {
		first = true
		instance, initErr = newRuntime(cfg, log)
	})
	if !first && log != nil {
		log.Warn("runtime: Init called again after initialization, ignoring")
	}
	return initErr
}

// Instance returns the singleton Runtime. It panics if Init has not
// been called successfully -- callers are expected to fail fast at
// startup, not at first use deep in a request path.
func Instance() *Runtime {
	if instance == nil {
		panic("runtime: Instance() called before a successful Init()")
	}
	return instance
}

// SetForTesting installs r as the singleton directly, bypassing Init's
// sync.Once guard. Tests call this to get a fresh Runtime per test
// instead of sharing the process-wide singleton.
func SetForTesting(r *Runtime) {
	instance = r
}

func newRuntime(cfg *config.Config, log *telemetry.Logger) (*Runtime, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var w watcher.Watcher
	nw, err := watcher.NewInotify()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("runtime: create inotify watcher: %w", err)
	}
	w = nw

	client := discovery.NewClient(ctx, cfg.Root, w, log)
	collector := metrics.New()
	client.AttachMetrics(collector)

	registryCapacity := totalMaxSubscribers(cfg)
	table, closeTable, err := uidpid.NewShared(sharedTablePath(cfg.Root), registryCapacity)
	if err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("runtime: map uid/pid table: %w", err)
	}

	return &Runtime{
		Discovery:     client,
		Registry:      table,
		Config:        cfg,
		Metrics:       collector,
		closeRegistry: closeTable,
		cancel:        cancel,
	}, nil
}

// RegisterConsumer registers uid/pid in the shared UID/PID table and
// reports the outcome to the attached metrics collector, the way a
// proxy binding's subscribe path would on every new consumer process
// (spec.md §4.2).
func (r *Runtime) RegisterConsumer(uid uint32, pid int32) (previous int32, ok bool) {
	previous, ok = r.Registry.RegisterPid(uid, pid)
	if ok {
		r.Metrics.RegisteredTotal.Inc()
	} else {
		r.Metrics.TableFullTotal.Inc()
	}
	return previous, ok
}

// Close shuts down the discovery worker and unmaps the shared
// registry. Intended for clean process shutdown and test teardown.
func (r *Runtime) Close() error {
	r.cancel()
	discErr := r.Discovery.Close()
	var regErr error
	if r.closeRegistry != nil {
		regErr = r.closeRegistry()
	}
	if discErr != nil {
		return discErr
	}
	return regErr
}

func sharedTablePath(root string) string {
	return root + "/.uidpid_registry"
}

func totalMaxSubscribers(cfg *config.Config) int {
	total := 0
	for _, inst := range cfg.Instances {
		if inst.MaxSubscribers > 0 {
			total += inst.MaxSubscribers
		} else {
			total += 1
		}
	}
	if total == 0 {
		total = uidpid.DefaultAcquireRetries
	}
	return total
}

// QualityOf resolves the configured quality level for a service id from
// the first configuration entry carrying that service id (spec.md §4.6:
// quality is a property of the service-type configuration entry).
func (r *Runtime) QualityOf(service identifier.ServiceID) (identifier.Quality, error) {
	for _, inst := range r.Config.Instances {
		if identifier.ServiceID(inst.ServiceID) == service {
			q := identifier.ParseQuality(inst.Quality)
			if q == identifier.Invalid {
				return identifier.Invalid, fmt.Errorf("runtime: service_id=%d has invalid configured quality %q", service, inst.Quality)
			}
			return q, nil
		}
	}
	return identifier.Invalid, fmt.Errorf("runtime: service_id=%d is not configured", service)
}
