package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mw_com_config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `{
		"root": "/tmp/discovery-root",
		"instances": [
			{
				"service_id": 1,
				"instance_id": 1,
				"quality": "ASIL_B",
				"events": {"speed": 1},
				"allowed_uids": {"asil_b": [1000], "asil_qm": [1000, 2000]},
				"max_subscribers": 4
			}
		],
		"tracing": {"enabled": false}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "/tmp/discovery-root" {
		t.Fatalf("unexpected root: %q", cfg.Root)
	}
	if cfg.Tracing.FilterPath != DefaultTraceFilterPath {
		t.Fatalf("expected default trace filter path, got %q", cfg.Tracing.FilterPath)
	}
	if cfg.Instances[0].ShmSizing != DefaultShmSizingPolicy {
		t.Fatalf("expected default shm sizing policy")
	}
}

func TestLoadRejectsDuplicateServiceEntries(t *testing.T) {
	path := writeConfig(t, `{
		"root": "/tmp/r",
		"instances": [
			{"service_id": 1, "instance_id": 1, "quality": "ASIL_B"},
			{"service_id": 1, "instance_id": 1, "quality": "ASIL_QM"}
		]
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate service-type entry to be rejected")
	}
}

func TestLoadRejectsEventFieldIDCollision(t *testing.T) {
	path := writeConfig(t, `{
		"root": "/tmp/r",
		"instances": [
			{"service_id": 1, "quality": "ASIL_B", "events": {"e1": 5}, "fields": {"f1": 5}}
		]
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected event/field id collision to be rejected")
	}
}

func TestLoadRejectsInvalidQuality(t *testing.T) {
	path := writeConfig(t, `{
		"root": "/tmp/r",
		"instances": [{"service_id": 1, "quality": "BOGUS"}]
	}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid quality to be rejected")
	}
}
