package runtime

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lensmint/device-identity/internal/config"
	"lensmint/device-identity/internal/fingerprint"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cpuinfo := filepath.Join(dir, "cpuinfo")
	if err := os.WriteFile(cpuinfo, []byte("Serial\t\t: 00000000deadbeef\n"), 0o644); err != nil {
		t.Fatalf("write cpuinfo: %v", err)
	}
	cfg := config.Default()
	cfg.Salt.PrimaryPath = filepath.Join(dir, ".device_salt")
	cfg.Salt.BackupPath = filepath.Join(dir, "home", ".device_salt_backup")
	cfg.Fingerprint = fingerprint.Sources{
		CPUInfoPath:   cpuinfo,
		NetClassDir:   filepath.Join(dir, "net"),
		Interfaces:    []string{"wlan0"},
		MachineIDPath: filepath.Join(dir, "machine-id"),
	}
	cfg.CameraID = "cam-1"
	return cfg
}

func TestRuntimeBuildsIdentity(t *testing.T) {
	var logs bytes.Buffer
	rt, err := New(testConfig(t), &logs)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	id, err := rt.Registry.Get()
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if id.CameraID() != "cam-1" {
		t.Fatalf("unexpected camera id %q", id.CameraID())
	}
	if id.SaltPath() != rt.Config.Salt.PrimaryPath {
		t.Fatalf("unexpected salt path %q", id.SaltPath())
	}
	if strings.Contains(logs.String(), "00000000deadbeef") {
		t.Fatal("raw cpu serial leaked into logs")
	}

	var out bytes.Buffer
	if err := rt.WriteMetrics(&out); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		`device_identity_constructions_total{result="ok"} 1`,
		`device_identity_salt_loads_total{source="created-primary"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestRuntimesAreIndependent(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	b, err := New(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("second runtime must not collide on metric registration: %v", err)
	}
	ida, err := a.Registry.Get()
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	idb, err := b.Registry.Get()
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if ida.Address() != idb.Address() {
		t.Fatal("same config and salt must yield the same address")
	}
}
