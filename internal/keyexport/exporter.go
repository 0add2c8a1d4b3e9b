// Package keyexport hands the device key to an out-of-process consumer by
// writing it to a file. The destination's access control is the caller's
// responsibility; plain exports are written with ordinary permissions.
package keyexport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lensmint/device-identity/internal/securestore"
	"lensmint/device-identity/pkg/models"
)

const (
	// DefaultFileName is used next to the running executable when no
	// destination is configured.
	DefaultFileName = ".device_key_export"

	plainPerm  = 0o644
	sealedPerm = 0o600
)

var ErrNoIdentity = errors.New("no identity to export")

// Source is anything that can produce the export record; *identity.Identity
// satisfies it.
type Source interface {
	KeyExport() (models.KeyExport, error)
}

// Export writes the key record as indented JSON to path, replacing any
// existing file.
func Export(src Source, path string) (models.KeyExport, error) {
	record, err := record(src)
	if err != nil {
		return models.KeyExport{}, err
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return models.KeyExport{}, err
	}
	if err := os.WriteFile(path, append(payload, '\n'), plainPerm); err != nil {
		return models.KeyExport{}, fmt.Errorf("write key export: %w", err)
	}
	return record, nil
}

// ExportSealed writes the same record sealed under passphrase.
func ExportSealed(src Source, path, passphrase string) (models.KeyExport, error) {
	record, err := record(src)
	if err != nil {
		return models.KeyExport{}, err
	}
	if err := securestore.WriteSealedJSON(path, passphrase, record, sealedPerm); err != nil {
		return models.KeyExport{}, fmt.Errorf("write sealed key export: %w", err)
	}
	return record, nil
}

// ReadSealed opens an export written by ExportSealed.
func ReadSealed(path, passphrase string) (models.KeyExport, error) {
	var record models.KeyExport
	if err := securestore.ReadSealedJSON(path, passphrase, &record); err != nil {
		return models.KeyExport{}, err
	}
	return record, nil
}

// DefaultPath is DefaultFileName in the directory of the running
// executable, or the working directory when that cannot be resolved.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

func record(src Source) (models.KeyExport, error) {
	if src == nil {
		return models.KeyExport{}, ErrNoIdentity
	}
	return src.KeyExport()
}
