package identity

import "errors"

var (
	// ErrInitialization means no hardware identifier could be collected.
	ErrInitialization = errors.New("identity initialization failed")
	// ErrStorage means the device salt could not be read or written at
	// either location.
	ErrStorage = errors.New("identity salt storage failed")
	// ErrKeyDerivation means the derived seed is not a usable secp256k1
	// scalar.
	ErrKeyDerivation = errors.New("identity key derivation failed")
	// ErrSigning is returned by any operation on an identity that never
	// reached the ready state.
	ErrSigning = errors.New("identity is not ready")

	ErrInvalidHash = errors.New("invalid message hash")
)
