package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// HashCapability records which address hash the build can produce. It is
// fixed at build time (see BuildCapability) and handed to the encoder; the
// signing path never probes for it.
type HashCapability int

const (
	KeccakAvailable HashCapability = iota + 1
	SHA256Fallback
)

func (c HashCapability) String() string {
	switch c {
	case KeccakAvailable:
		return "keccak-available"
	case SHA256Fallback:
		return "sha256-fallback"
	default:
		return fmt.Sprintf("HashCapability(%d)", int(c))
	}
}

// AddressAlgorithm tags an address with the hash that produced it.
// Fallback addresses live in a different address space from Keccak ones
// and must not be treated as interchangeable.
type AddressAlgorithm string

const (
	AlgorithmKeccak256      AddressAlgorithm = "keccak256"
	AlgorithmSHA256Fallback AddressAlgorithm = "sha256-fallback"
)

const addressLen = 20

type Address struct {
	Hex       string
	Algorithm AddressAlgorithm
}

func (a Address) String() string { return a.Hex }

// Compatible reports whether the address is a standard Keccak account
// address.
func (a Address) Compatible() bool { return a.Algorithm == AlgorithmKeccak256 }

// Checksum returns the EIP-55 mixed-case rendering for Keccak addresses.
// Fallback addresses are returned unchanged since EIP-55 does not apply.
func (a Address) Checksum() string {
	if !a.Compatible() {
		return a.Hex
	}
	return common.HexToAddress(a.Hex).Hex()
}

type AddressEncoder struct {
	capability HashCapability
}

func NewAddressEncoder(capability HashCapability) (AddressEncoder, error) {
	switch capability {
	case KeccakAvailable, SHA256Fallback:
		return AddressEncoder{capability: capability}, nil
	default:
		return AddressEncoder{}, fmt.Errorf("unknown hash capability %s", capability)
	}
}

func (e AddressEncoder) Capability() HashCapability { return e.capability }

// Encode reduces a public key to a 20-byte 0x-prefixed address. With
// Keccak it is the last 20 bytes of Keccak-256(X || Y); with the fallback
// it is the first 20 bytes of SHA-256(X || Y).
func (e AddressEncoder) Encode(pub *secp256k1.PublicKey) (Address, error) {
	if pub == nil {
		return Address{}, fmt.Errorf("%w: nil public key", ErrKeyDerivation)
	}
	raw := pub.SerializeUncompressed()[1:]
	switch e.capability {
	case KeccakAvailable:
		h := sha3.NewLegacyKeccak256()
		h.Write(raw)
		sum := h.Sum(nil)
		return Address{Hex: "0x" + hex.EncodeToString(sum[len(sum)-addressLen:]), Algorithm: AlgorithmKeccak256}, nil
	case SHA256Fallback:
		sum := sha256.Sum256(raw)
		return Address{Hex: "0x" + hex.EncodeToString(sum[:addressLen]), Algorithm: AlgorithmSHA256Fallback}, nil
	default:
		return Address{}, fmt.Errorf("unknown hash capability %s", e.capability)
	}
}

// RecoverAddress returns the Keccak address of the key that produced a
// 65-byte r || s || v signature over hash. v may be 0/1 or 27/28.
func RecoverAddress(hash, sig []byte) (Address, error) {
	if len(hash) != sha256.Size {
		return Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidHash, sha256.Size, len(hash))
	}
	if len(sig) != recoverableSigLen {
		return Address{}, fmt.Errorf("recoverable signature must be %d bytes, got %d", recoverableSigLen, len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash, normalized)
	if err != nil {
		return Address{}, err
	}
	return Address{
		Hex:       strings.ToLower(ethcrypto.PubkeyToAddress(*pub).Hex()),
		Algorithm: AlgorithmKeccak256,
	}, nil
}
