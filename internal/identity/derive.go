package identity

import (
	"crypto/sha256"
	"fmt"

	"lensmint/device-identity/internal/fingerprint"
	"lensmint/device-identity/internal/saltstore"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyMaterial is a secp256k1 keypair. It never leaves the owning Identity
// except through an explicit export.
type KeyMaterial struct {
	private *secp256k1.PrivateKey
	public  *secp256k1.PublicKey
}

// DeriveKey computes SHA-256(fingerprint || salt) and uses the digest as
// the private scalar. The same inputs always produce the same keypair.
func DeriveKey(fp fingerprint.Fingerprint, salt [saltstore.Size]byte) (*KeyMaterial, error) {
	if len(fp) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, fingerprint.ErrNoIdentifiers)
	}
	h := sha256.New()
	h.Write(fp.Bytes())
	h.Write(salt[:])
	seed := h.Sum(nil)
	defer zeroBytes(seed)
	return keyFromSeed(seed)
}

// keyFromSeed rejects seeds outside [1, N-1] instead of reducing them, so a
// given seed maps to exactly one key or to an error.
func keyFromSeed(seed []byte) (*KeyMaterial, error) {
	if len(seed) != sha256.Size {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrKeyDerivation, sha256.Size)
	}
	var scalar secp256k1.ModNScalar
	defer scalar.Zero()
	if overflow := scalar.SetByteSlice(seed); overflow {
		return nil, fmt.Errorf("%w: seed exceeds the curve order", ErrKeyDerivation)
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("%w: seed is zero", ErrKeyDerivation)
	}
	priv := secp256k1.NewPrivateKey(&scalar)
	return &KeyMaterial{private: priv, public: priv.PubKey()}, nil
}

// PublicKeyBytes returns the 64-byte X || Y encoding of the public point,
// the form that is hashed into addresses and hex-encoded for callers.
func (k *KeyMaterial) PublicKeyBytes() []byte {
	return k.public.SerializeUncompressed()[1:]
}

func (k *KeyMaterial) PublicKey() *secp256k1.PublicKey {
	return k.public
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
