package saltstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lensmint/device-identity/internal/platform/metrics"
	"lensmint/device-identity/internal/testutil/fsperm"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func fixedRand(b byte) io.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{b}, Size))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

// blockedPath returns a path that can be neither read nor created because
// one of its parents is a regular file. Works regardless of the test user.
func blockedPath(t *testing.T, name string) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	return filepath.Join(blocker, name)
}

func TestGetOrCreatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, ".device_salt")
	backup := filepath.Join(dir, "home", ".device_salt_backup")

	first, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: fixedRand(7)}).GetOrCreate()
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.Source != SourceCreatedPrimary || first.Path != primary {
		t.Fatalf("unexpected first salt location: %s %s", first.Source, first.Path)
	}
	if first.Value != [Size]byte(bytes.Repeat([]byte{7}, Size)) {
		t.Fatal("salt should come from the configured random source")
	}
	fsperm.AssertPrivateFilePerm(t, primary)

	second, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: failingReader{}}).GetOrCreate()
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.Source != SourcePrimary {
		t.Fatalf("expected salt read back from primary, got %s", second.Source)
	}
	if second.Value != first.Value {
		t.Fatal("salt changed across restarts")
	}
	if _, err := os.Stat(backup); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("backup should not be written when primary works, stat err=%v", err)
	}
}

func TestGetOrCreateFallsBackToBackup(t *testing.T) {
	primary := blockedPath(t, ".device_salt")
	backup := filepath.Join(t.TempDir(), "nested", ".lensmint", ".device_salt_backup")

	first, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: fixedRand(3)}).GetOrCreate()
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.Source != SourceCreatedBackup || first.Path != backup {
		t.Fatalf("expected salt created at backup, got %s %s", first.Source, first.Path)
	}
	fsperm.AssertPrivateFilePerm(t, backup)
	fsperm.AssertPrivateDirPerm(t, filepath.Dir(backup))

	second, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: fixedRand(9)}).GetOrCreate()
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.Source != SourceBackup || second.Value != first.Value {
		t.Fatalf("expected original backup salt, got source %s", second.Source)
	}
}

func TestPrimaryWinsOverBackup(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary")
	backup := filepath.Join(dir, "backup")
	writeFile(t, primary, bytes.Repeat([]byte{1}, Size))
	writeFile(t, backup, bytes.Repeat([]byte{2}, Size))

	salt, err := New(Options{PrimaryPath: primary, BackupPath: backup}).GetOrCreate()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if salt.Source != SourcePrimary || salt.Value[0] != 1 {
		t.Fatalf("expected primary salt, got %s %x", salt.Source, salt.Value[0])
	}
}

func TestCorruptPrimaryIsSkipped(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary")
	backup := filepath.Join(dir, "backup")
	writeFile(t, primary, []byte("short"))
	writeFile(t, backup, bytes.Repeat([]byte{4}, Size))

	salt, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: failingReader{}}).GetOrCreate()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if salt.Source != SourceBackup || salt.Value[0] != 4 {
		t.Fatalf("expected backup salt, got %s", salt.Source)
	}
	raw, err := os.ReadFile(primary)
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}
	if string(raw) != "short" {
		t.Fatal("corrupt primary must not be touched while a valid backup exists")
	}
}

func TestCorruptPrimaryReplacedWhenNoValidSaltExists(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary")
	writeFile(t, primary, bytes.Repeat([]byte{5}, Size+4))

	salt, err := New(Options{PrimaryPath: primary, BackupPath: filepath.Join(dir, "backup"), Rand: fixedRand(6)}).GetOrCreate()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if salt.Path != primary || salt.Source != SourceCreatedPrimary || salt.Value[0] != 6 {
		t.Fatalf("expected replaced primary, got %s %s", salt.Source, salt.Path)
	}
	raw, err := os.ReadFile(primary)
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}
	if len(raw) != Size {
		t.Fatalf("primary should now hold %d bytes, got %d", Size, len(raw))
	}
}

func TestConcurrentReplaceOfCorruptPrimaryAgreesOnOneSalt(t *testing.T) {
	for iter := 0; iter < 10; iter++ {
		dir := t.TempDir()
		primary := filepath.Join(dir, "primary")
		backup := filepath.Join(dir, "backup")
		writeFile(t, primary, []byte{1, 2, 3})

		var (
			wg    sync.WaitGroup
			salts [2]Salt
			errs  [2]error
		)
		for i := range salts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				store := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: fixedRand(byte(i + 1))})
				salts[i], errs[i] = store.GetOrCreate()
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("iteration %d: caller %d: %v", iter, i, err)
			}
		}
		raw, err := os.ReadFile(primary)
		if err != nil {
			t.Fatalf("read primary: %v", err)
		}
		for i, salt := range salts {
			if salt.Path != primary || !bytes.Equal(salt.Value[:], raw) {
				t.Fatalf("iteration %d: caller %d kept %x, primary holds %x", iter, i, salt.Value[:], raw)
			}
		}
		reloaded, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: failingReader{}}).GetOrCreate()
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if reloaded.Value != salts[0].Value {
			t.Fatalf("iteration %d: salt changed after restart", iter)
		}
	}
}

func TestBothLocationsUnwritable(t *testing.T) {
	primary := blockedPath(t, "primary")
	backup := blockedPath(t, filepath.Join("dir", "backup"))

	_, err := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: fixedRand(1)}).GetOrCreate()
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestRandomFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{
		PrimaryPath: filepath.Join(dir, "p"),
		BackupPath:  filepath.Join(dir, "b"),
		Rand:        failingReader{},
	}).GetOrCreate()
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestConcurrentCreateAgreesOnOneSalt(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary")
	backup := filepath.Join(dir, "backup")

	const workers = 16
	results := make([]Salt, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store := New(Options{PrimaryPath: primary, BackupPath: backup, Rand: fixedRand(byte(i + 1))})
			results[i], errs[i] = store.GetOrCreate()
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i].Value != results[0].Value {
			t.Fatalf("worker %d adopted a different salt", i)
		}
	}
	onDisk, err := readSalt(primary)
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}
	if onDisk != results[0].Value {
		t.Fatal("returned salt differs from persisted salt")
	}
}

func TestSaltLoadsAreCounted(t *testing.T) {
	m, err := metrics.New(nil)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	dir := t.TempDir()
	opts := Options{PrimaryPath: filepath.Join(dir, "p"), BackupPath: filepath.Join(dir, "b"), Rand: fixedRand(2), Metrics: m}
	for i := 0; i < 3; i++ {
		if _, err := New(opts).GetOrCreate(); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	if got := testutil.ToFloat64(m.SaltLoads(string(SourceCreatedPrimary))); got != 1 {
		t.Fatalf("created loads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SaltLoads(string(SourcePrimary))); got != 2 {
		t.Fatalf("primary loads = %v, want 2", got)
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(fmt.Errorf("write %s: %w", path, err))
	}
}
