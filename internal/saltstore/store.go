// Package saltstore persists the 32-byte device salt that, together with the
// hardware fingerprint, determines the device key. The salt lives at a
// primary path with a per-user backup location for devices where the
// primary is not writable.
package saltstore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lensmint/device-identity/internal/platform/metrics"
	"lensmint/device-identity/internal/platform/privacylog"
)

// Size is the only accepted salt length. Files of any other length are
// treated as corrupt.
const Size = 32

const (
	adoptAttempts = 10
	adoptBackoff  = 25 * time.Millisecond

	lockSuffix = ".lock"
)

var (
	ErrStorage       = errors.New("device salt storage unavailable")
	ErrSaltExists    = errors.New("a different device salt is already installed")
	ErrInvalidPhrase = errors.New("invalid salt recovery phrase")

	errCorrupt = errors.New("salt file has unexpected length")
)

type Source string

const (
	SourcePrimary        Source = "primary"
	SourceBackup         Source = "backup"
	SourceCreatedPrimary Source = "created-primary"
	SourceCreatedBackup  Source = "created-backup"
)

// Salt is a resolved device salt and the file it came from.
type Salt struct {
	Value  [Size]byte
	Path   string
	Source Source
}

type Options struct {
	PrimaryPath string
	BackupPath  string
	// Rand defaults to crypto/rand.
	Rand    io.Reader
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Store struct {
	primary location
	backup  location
	rand    io.Reader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type location struct {
	path    string
	loaded  Source
	created Source
}

func New(opts Options) *Store {
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	return &Store{
		primary: location{path: opts.PrimaryPath, loaded: SourcePrimary, created: SourceCreatedPrimary},
		backup:  location{path: opts.BackupPath, loaded: SourceBackup, created: SourceCreatedBackup},
		rand:    r,
		logger:  privacylog.OrDiscard(opts.Logger),
		metrics: opts.Metrics,
	}
}

func (s *Store) PrimaryPath() string { return s.primary.path }

func (s *Store) BackupPath() string { return s.backup.path }

// GetOrCreate returns the persisted salt, creating it on first use. An
// existing valid salt at either location is never replaced.
func (s *Store) GetOrCreate() (Salt, error) {
	if salt, ok := s.load(); ok {
		s.metrics.ObserveSaltLoad(string(salt.Source))
		return salt, nil
	}

	var value [Size]byte
	if _, err := io.ReadFull(s.rand, value[:]); err != nil {
		return Salt{}, fmt.Errorf("%w: generate salt: %w", ErrStorage, err)
	}
	s.logger.Info("creating new device salt")
	salt, err := s.install(value)
	if err != nil {
		return Salt{}, err
	}
	s.metrics.ObserveSaltLoad(string(salt.Source))
	return salt, nil
}

// load reads the primary then the backup location. Unreadable, missing and
// corrupt files are logged and skipped.
func (s *Store) load() (Salt, bool) {
	for _, loc := range []location{s.primary, s.backup} {
		if loc.path == "" {
			continue
		}
		value, err := readSalt(loc.path)
		switch {
		case err == nil:
			s.logger.Info("device salt loaded", "salt_path", loc.path, "source", string(loc.loaded))
			return Salt{Value: value, Path: loc.path, Source: loc.loaded}, true
		case errors.Is(err, fs.ErrNotExist):
		case errors.Is(err, fs.ErrPermission):
			s.logger.Warn("permission denied reading device salt", "salt_path", loc.path)
		case errors.Is(err, errCorrupt):
			s.logger.Warn("ignoring corrupt device salt", "salt_path", loc.path)
		default:
			s.logger.Warn("cannot read device salt", "salt_path", loc.path, "error", err)
		}
	}
	return Salt{}, false
}

// install persists value at the primary location, falling back to the
// backup when the primary cannot be written.
func (s *Store) install(value [Size]byte) (Salt, error) {
	salt, primaryErr := s.installAt(s.primary, value)
	if primaryErr == nil {
		return salt, nil
	}
	s.logger.Warn("cannot write device salt, using backup location",
		"salt_path", s.primary.path,
		"backup_path", s.backup.path,
		"error", primaryErr,
	)

	backupErr := os.MkdirAll(filepath.Dir(s.backup.path), 0o700)
	if backupErr == nil {
		salt, backupErr = s.installAt(s.backup, value)
		if backupErr == nil {
			return salt, nil
		}
	}
	return Salt{}, fmt.Errorf("%w: %w", ErrStorage, errors.Join(
		fmt.Errorf("primary %s: %w", s.primary.path, primaryErr),
		fmt.Errorf("backup %s: %w", s.backup.path, backupErr),
	))
}

// installAt creates loc.path only if it is absent. When another writer got
// there first its value is adopted instead of overwritten.
func (s *Store) installAt(loc location, value [Size]byte) (Salt, error) {
	if loc.path == "" {
		return Salt{}, errors.New("path not configured")
	}
	err := createExclusive(loc.path, value[:])
	if err == nil {
		s.logger.Info("device salt saved", "salt_path", loc.path)
		return Salt{Value: value, Path: loc.path, Source: loc.created}, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return Salt{}, err
	}

	existing, err := awaitSalt(loc.path)
	if err == nil {
		s.logger.Info("adopting device salt written concurrently", "salt_path", loc.path)
		return Salt{Value: existing, Path: loc.path, Source: loc.loaded}, nil
	}
	if !errors.Is(err, errCorrupt) {
		return Salt{}, err
	}
	return s.replaceCorrupt(loc, value)
}

// replaceCorrupt rewrites a corrupt salt file under an exclusive lock. The
// file is re-read once the lock is held, so only the first writer replaces
// it and everyone after adopts that value.
func (s *Store) replaceCorrupt(loc location, value [Size]byte) (Salt, error) {
	unlock, err := lockPath(loc.path + lockSuffix)
	if err != nil {
		return Salt{}, err
	}
	defer unlock()

	existing, err := readSalt(loc.path)
	switch {
	case err == nil:
		s.logger.Info("adopting device salt written concurrently", "salt_path", loc.path)
		return Salt{Value: existing, Path: loc.path, Source: loc.loaded}, nil
	case errors.Is(err, fs.ErrNotExist):
		if err := createExclusive(loc.path, value[:]); err != nil {
			if !errors.Is(err, fs.ErrExist) {
				return Salt{}, err
			}
			if existing, err = awaitSalt(loc.path); err != nil {
				return Salt{}, err
			}
			return Salt{Value: existing, Path: loc.path, Source: loc.loaded}, nil
		}
	case errors.Is(err, errCorrupt):
		s.logger.Warn("replacing corrupt device salt", "salt_path", loc.path)
		if err := replaceFile(loc.path, value[:]); err != nil {
			return Salt{}, err
		}
	default:
		return Salt{}, err
	}
	s.logger.Info("device salt saved", "salt_path", loc.path)
	return Salt{Value: value, Path: loc.path, Source: loc.created}, nil
}

// awaitSalt gives a concurrent writer a bounded window to finish writing
// before the file is declared corrupt.
func awaitSalt(path string) ([Size]byte, error) {
	var (
		value [Size]byte
		err   error
	)
	for i := 0; i < adoptAttempts; i++ {
		value, err = readSalt(path)
		if !errors.Is(err, errCorrupt) {
			return value, err
		}
		time.Sleep(adoptBackoff)
	}
	return value, err
}

func readSalt(path string) ([Size]byte, error) {
	var value [Size]byte
	f, err := os.Open(path)
	if err != nil {
		return value, err
	}
	defer f.Close()

	buf := make([]byte, Size+1)
	n, err := io.ReadFull(f, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
	case err != nil:
		return value, err
	}
	if n != Size {
		return value, fmt.Errorf("%w: %s", errCorrupt, path)
	}
	copy(value[:], buf[:Size])
	return value, nil
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if err := writeAndSync(f, data); err != nil {
		_ = os.Remove(path)
		return err
	}
	return os.Chmod(path, 0o600)
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".salt-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := writeAndSync(tmp, data); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
