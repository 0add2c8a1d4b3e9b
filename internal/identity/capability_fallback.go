//go:build identity_sha256_fallback

package identity

// BuildCapability is the address hash this binary was built with. The
// identity_sha256_fallback tag produces addresses that are not valid on
// Keccak-based account systems; it exists for bring-up builds only.
const BuildCapability = SHA256Fallback
