//go:build !identity_sha256_fallback

package identity

// BuildCapability is the address hash this binary was built with.
const BuildCapability = KeccakAvailable
