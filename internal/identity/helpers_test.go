package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"testing"

	"lensmint/device-identity/internal/fingerprint"
	"lensmint/device-identity/internal/saltstore"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type stubSalts struct {
	salt  saltstore.Salt
	err   error
	calls atomic.Int32
}

func (s *stubSalts) GetOrCreate() (saltstore.Salt, error) {
	s.calls.Add(1)
	return s.salt, s.err
}

// stubFingerprints prepends the camera id the way the real collector does.
type stubFingerprints struct {
	hardware fingerprint.Fingerprint
	err      error
	calls    atomic.Int32
}

func (s *stubFingerprints) Collect(cameraID string) (fingerprint.Fingerprint, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	var fp fingerprint.Fingerprint
	if cameraID != "" {
		fp = append(fp, fingerprint.Identifier{Source: fingerprint.SourceCamera, Value: cameraID})
	}
	return append(fp, s.hardware...), nil
}

func zeroSalt() saltstore.Salt {
	return saltstore.Salt{Path: "/boot/.device_salt", Source: saltstore.SourcePrimary}
}

func scenarioIdentity(t testing.TB) *Identity {
	t.Helper()
	id, err := FromMaterial(scenarioFingerprint(), zeroSalt(), "abc123", KeccakAvailable)
	if err != nil {
		t.Fatalf("build scenario identity: %v", err)
	}
	return id
}
