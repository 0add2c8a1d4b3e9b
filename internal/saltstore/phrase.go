package saltstore

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Phrase renders the salt as a 24-word BIP-39 mnemonic so an operator can
// reinstall it after the salt files are lost.
func Phrase(salt Salt) (string, error) {
	return bip39.NewMnemonic(salt.Value[:])
}

// ParsePhrase decodes a recovery phrase back into salt bytes.
func ParsePhrase(phrase string) ([Size]byte, error) {
	var value [Size]byte
	phrase = strings.Join(strings.Fields(phrase), " ")
	if phrase == "" || !bip39.IsMnemonicValid(phrase) {
		return value, ErrInvalidPhrase
	}
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return value, fmt.Errorf("%w: %w", ErrInvalidPhrase, err)
	}
	if len(entropy) != Size {
		return value, fmt.Errorf("%w: phrase encodes %d bytes, want %d", ErrInvalidPhrase, len(entropy), Size)
	}
	copy(value[:], entropy)
	return value, nil
}

// Restore installs the salt encoded by phrase. Restoring the salt that is
// already present is a no-op; a different present salt is never replaced.
func (s *Store) Restore(phrase string) (Salt, error) {
	value, err := ParsePhrase(phrase)
	if err != nil {
		return Salt{}, err
	}
	if existing, ok := s.load(); ok {
		if existing.Value != value {
			return Salt{}, fmt.Errorf("%w at %s", ErrSaltExists, existing.Path)
		}
		return existing, nil
	}
	salt, err := s.install(value)
	if err != nil {
		return Salt{}, err
	}
	if salt.Value != value {
		return Salt{}, fmt.Errorf("%w at %s", ErrSaltExists, salt.Path)
	}
	s.logger.Info("device salt restored from recovery phrase", "salt_path", salt.Path)
	s.metrics.ObserveSaltLoad(string(salt.Source))
	return salt, nil
}
