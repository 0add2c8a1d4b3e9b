package securestore

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteSealedJSON marshals v, seals it with passphrase and writes it to
// path with perm, replacing any existing file.
func WriteSealedJSON(path, passphrase string, v any, perm os.FileMode) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := Encrypt(passphrase, payload)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, sealed, perm)
}

// ReadSealedJSON opens a file written by WriteSealedJSON into v.
func ReadSealedJSON(path, passphrase string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	plain, err := Decrypt(passphrase, raw)
	if err != nil {
		return err
	}
	defer zeroBytes(plain)
	return json.Unmarshal(plain, v)
}
