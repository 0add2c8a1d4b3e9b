package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	rawSigLen         = 64
	recoverableSigLen = 65
	compactMagic      = 27
)

// signDigest produces an RFC 6979 deterministic, low-S signature and
// returns it as r || s || v with v in {0, 1}.
func signDigest(priv *secp256k1.PrivateKey, digest []byte) []byte {
	compact := ecdsa.SignCompact(priv, digest, false)
	out := make([]byte, recoverableSigLen)
	copy(out, compact[1:])
	out[64] = compact[0] - compactMagic
	return out
}

// parseSignature accepts r || s, r || s || v, or DER. It reports false for
// anything that is not a structurally valid signature.
func parseSignature(sig []byte) (*ecdsa.Signature, bool) {
	switch len(sig) {
	case rawSigLen, recoverableSigLen:
		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
			return nil, false
		}
		if overflow := s.SetByteSlice(sig[32:64]); overflow || s.IsZero() {
			return nil, false
		}
		return ecdsa.NewSignature(&r, &s), true
	default:
		parsed, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return nil, false
		}
		return parsed, true
	}
}

// verifyDigest checks sig against pub. For r || s || v the recovery id
// must also recover pub, so v is covered by the signature check too.
func verifyDigest(pub *secp256k1.PublicKey, digest, sig []byte) bool {
	parsed, ok := parseSignature(sig)
	if !ok || !parsed.Verify(digest, pub) {
		return false
	}
	if len(sig) != recoverableSigLen {
		return true
	}
	return recoversTo(pub, digest, sig)
}

func recoversTo(pub *secp256k1.PublicKey, digest, sig []byte) bool {
	v := sig[64]
	switch v {
	case 0, 1:
		v += compactMagic
	case compactMagic, compactMagic + 1:
	default:
		return false
	}
	compact := make([]byte, recoverableSigLen)
	compact[0] = v
	copy(compact[1:], sig[:rawSigLen])
	recovered, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return false
	}
	return recovered.IsEqual(pub)
}

// decodeHex accepts hex with an optional 0x prefix and surrounding space.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

func checkDigest(hash []byte) error {
	if len(hash) != sha256.Size {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidHash, sha256.Size, len(hash))
	}
	return nil
}
