// Package identity derives the device's secp256k1 signing identity from its
// hardware fingerprint and persisted salt, and signs and verifies on its
// behalf.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"lensmint/device-identity/internal/fingerprint"
	"lensmint/device-identity/internal/platform/metrics"
	"lensmint/device-identity/internal/platform/privacylog"
	"lensmint/device-identity/internal/saltstore"
	"lensmint/device-identity/pkg/models"
)

// SignatureAlgorithm labels every signature record this package produces.
const SignatureAlgorithm = "ECDSA_SECP256k1"

type SaltSource interface {
	GetOrCreate() (saltstore.Salt, error)
}

type FingerprintSource interface {
	Collect(cameraID string) (fingerprint.Fingerprint, error)
}

type Options struct {
	CameraID     string
	Salts        SaltSource
	Fingerprints FingerprintSource
	// Capability defaults to BuildCapability.
	Capability HashCapability
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Identity is the assembled signing identity. A value returned by New is
// ready and immutable, so it is safe for concurrent use. The zero value is
// never ready and every operation on it fails with ErrSigning.
type Identity struct {
	ready        bool
	keys         *KeyMaterial
	address      Address
	publicKeyHex string
	cameraID     string
	saltPath     string
	metrics      *metrics.Metrics
}

// New loads the salt, collects the fingerprint and derives the keypair.
// It either returns a ready identity or an error wrapping ErrStorage,
// ErrInitialization or ErrKeyDerivation.
func New(opts Options) (*Identity, error) {
	id, err := build(opts)
	opts.Metrics.ObserveConstruction(err)
	return id, err
}

func build(opts Options) (*Identity, error) {
	logger := privacylog.OrDiscard(opts.Logger)
	if opts.Salts == nil || opts.Fingerprints == nil {
		return nil, fmt.Errorf("%w: salt and fingerprint sources are required", ErrInitialization)
	}

	opts.CameraID = strings.TrimSpace(opts.CameraID)
	salt, err := opts.Salts.GetOrCreate()
	if err != nil {
		logger.Error("device salt unavailable", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	fp, err := opts.Fingerprints.Collect(opts.CameraID)
	if err != nil {
		logger.Error("hardware fingerprint unavailable", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	id, err := FromMaterial(fp, salt, opts.CameraID, opts.Capability)
	if err != nil {
		return nil, err
	}
	id.metrics = opts.Metrics
	if !id.address.Compatible() {
		logger.Warn("device address uses the SHA-256 fallback and is not a Keccak account address",
			"address", id.address.Hex,
			"algorithm", string(id.address.Algorithm),
		)
	}
	logger.Info("hardware identity initialized",
		"address", id.address.Hex,
		"camera_id", id.cameraID,
		"salt_path", id.saltPath,
		"components", len(fp),
	)
	return id, nil
}

// FromMaterial builds an identity from an already collected fingerprint and
// salt. Identical inputs always yield an identical identity.
func FromMaterial(fp fingerprint.Fingerprint, salt saltstore.Salt, cameraID string, capability HashCapability) (*Identity, error) {
	if capability == 0 {
		capability = BuildCapability
	}
	cameraID = strings.TrimSpace(cameraID)
	encoder, err := NewAddressEncoder(capability)
	if err != nil {
		return nil, err
	}
	keys, err := DeriveKey(fp, salt.Value)
	if err != nil {
		return nil, err
	}
	address, err := encoder.Encode(keys.public)
	if err != nil {
		return nil, err
	}
	return &Identity{
		ready:        true,
		keys:         keys,
		address:      address,
		publicKeyHex: hex.EncodeToString(keys.PublicKeyBytes()),
		cameraID:     cameraID,
		saltPath:     salt.Path,
	}, nil
}

func (i *Identity) checkReady() error {
	if i == nil || !i.ready || i.keys == nil {
		return ErrSigning
	}
	return nil
}

// Sign signs SHA-256(data) and returns the 64-byte r || s signature.
func (i *Identity) Sign(data []byte) ([]byte, error) {
	if err := i.checkReady(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	sig := signDigest(i.keys.private, digest[:])
	i.metrics.ObserveSignature("data")
	return sig[:rawSigLen], nil
}

// SignHash signs a precomputed 32-byte digest as is.
func (i *Identity) SignHash(hash []byte) (models.SignatureRecord, error) {
	if err := i.checkReady(); err != nil {
		return models.SignatureRecord{}, err
	}
	if err := checkDigest(hash); err != nil {
		return models.SignatureRecord{}, err
	}
	sig := signDigest(i.keys.private, hash)
	i.metrics.ObserveSignature("hash")
	return models.SignatureRecord{
		Signature: hex.EncodeToString(sig[:rawSigLen]),
		Address:   i.address.Hex,
		Algorithm: SignatureAlgorithm,
		SaltPath:  i.saltPath,
	}, nil
}

// SignHashHex is SignHash for a hex digest with an optional 0x prefix.
func (i *Identity) SignHashHex(hash string) (models.SignatureRecord, error) {
	if err := i.checkReady(); err != nil {
		return models.SignatureRecord{}, err
	}
	raw, err := decodeHex(hash)
	if err != nil {
		return models.SignatureRecord{}, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	return i.SignHash(raw)
}

// SignRecoverable signs a 32-byte digest and returns r || s || v, the form
// Ethereum-style verifiers recover the signer's address from.
func (i *Identity) SignRecoverable(hash []byte) ([]byte, error) {
	if err := i.checkReady(); err != nil {
		return nil, err
	}
	if err := checkDigest(hash); err != nil {
		return nil, err
	}
	i.metrics.ObserveSignature("recoverable")
	return signDigest(i.keys.private, hash), nil
}

// Verify checks sig over SHA-256(data) against this identity's key.
// Malformed signatures verify as false; the only error is ErrSigning.
func (i *Identity) Verify(data, sig []byte) (bool, error) {
	if err := i.checkReady(); err != nil {
		return false, err
	}
	digest := sha256.Sum256(data)
	ok := verifyDigest(i.keys.public, digest[:], sig)
	i.metrics.ObserveVerification(ok)
	return ok, nil
}

// VerifyHex is Verify for a hex signature with an optional 0x prefix.
func (i *Identity) VerifyHex(data []byte, sig string) (bool, error) {
	if err := i.checkReady(); err != nil {
		return false, err
	}
	raw, err := decodeHex(sig)
	if err != nil {
		i.metrics.ObserveVerification(false)
		return false, nil
	}
	return i.Verify(data, raw)
}

// VerifyHash checks sig over a precomputed digest.
func (i *Identity) VerifyHash(hash, sig []byte) (bool, error) {
	if err := i.checkReady(); err != nil {
		return false, err
	}
	ok := len(hash) == sha256.Size && verifyDigest(i.keys.public, hash, sig)
	i.metrics.ObserveVerification(ok)
	return ok, nil
}

// PublicKeyHex returns the 64-byte X || Y public key in hex, or "" when the
// identity is not ready.
func (i *Identity) PublicKeyHex() string {
	if i.checkReady() != nil {
		return ""
	}
	return i.publicKeyHex
}

func (i *Identity) Address() string {
	if i.checkReady() != nil {
		return ""
	}
	return i.address.Hex
}

func (i *Identity) AddressAlgorithm() AddressAlgorithm {
	if i.checkReady() != nil {
		return ""
	}
	return i.address.Algorithm
}

func (i *Identity) ChecksumAddress() string {
	if i.checkReady() != nil {
		return ""
	}
	return i.address.Checksum()
}

func (i *Identity) CameraID() string {
	if i == nil {
		return ""
	}
	return i.cameraID
}

// SaltPath is the file the salt was actually loaded from or written to.
func (i *Identity) SaltPath() string {
	if i == nil {
		return ""
	}
	return i.saltPath
}

func (i *Identity) Info() models.HardwareInfo {
	ready := i.checkReady() == nil
	info := models.HardwareInfo{
		CameraID:    i.CameraID(),
		SaltPath:    i.SaltPath(),
		Initialized: ready,
	}
	if ready {
		info.Address = i.address.Hex
		info.AddressAlgorithm = string(i.address.Algorithm)
		info.PublicKeyHex = i.publicKeyHex
	}
	return info
}

// KeyExport is the only accessor that exposes the private scalar. It
// exists for the key export handoff and nothing else.
func (i *Identity) KeyExport() (models.KeyExport, error) {
	if err := i.checkReady(); err != nil {
		return models.KeyExport{}, err
	}
	priv := i.keys.private.Serialize()
	defer zeroBytes(priv)
	export := models.KeyExport{
		PrivateKey: "0x" + hex.EncodeToString(priv),
		Address:    i.address.Hex,
		PublicKey:  i.publicKeyHex,
	}
	if i.cameraID != "" {
		cameraID := i.cameraID
		export.CameraID = &cameraID
	}
	return export, nil
}
