package models

// SignatureRecord is the result of signing a precomputed digest.
type SignatureRecord struct {
	Signature string `json:"signature"`
	Address   string `json:"address"`
	Algorithm string `json:"algorithm"`
	SaltPath  string `json:"salt_path"`
}

// KeyExport is the interchange record handed to the backend process.
// Field names are fixed by the consumer.
type KeyExport struct {
	PrivateKey string  `json:"privateKey"`
	Address    string  `json:"address"`
	CameraID   *string `json:"cameraId"`
	PublicKey  string  `json:"publicKey"`
}

type HardwareInfo struct {
	Address          string `json:"address"`
	AddressAlgorithm string `json:"address_algorithm"`
	CameraID         string `json:"camera_id,omitempty"`
	PublicKeyHex     string `json:"public_key_hex"`
	SaltPath         string `json:"salt_path"`
	Initialized      bool   `json:"initialized"`
}
