// Package securestore seals small JSON payloads under a passphrase with
// Argon2id and XChaCha20-Poly1305.
package securestore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	kdfName         = "argon2id"
	kdfSaltSize     = 16
	kdfTime         = uint32(2)
	kdfMemoryKB     = uint32(64 * 1024)
	kdfThreads      = uint8(1)
)

var sealedPrefix = []byte("DIDSEAL1\n")

var (
	ErrAuthFailed = errors.New("securestore authentication failed")
	ErrInvalid    = errors.New("securestore envelope is invalid")
	ErrNotSealed  = errors.New("securestore data is not sealed")
	ErrNoSecret   = errors.New("securestore passphrase is empty")
)

// Envelope is the JSON body that follows the sealed prefix. KDF parameters
// travel with the ciphertext so they can be raised without breaking old
// files.
type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Encrypt seals plaintext and returns the prefixed file content.
func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrNoSecret
	}
	env, err := Seal(passphrase, plaintext)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealedPrefix)+len(body))
	out = append(out, sealedPrefix...)
	return append(out, body...), nil
}

// Decrypt reverses Encrypt. Content without the sealed prefix is reported
// as ErrNotSealed so callers can tell plain exports apart.
func Decrypt(passphrase string, data []byte) ([]byte, error) {
	body, ok := bytes.CutPrefix(data, sealedPrefix)
	if !ok {
		return nil, ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrInvalid
	}
	return Open(passphrase, &env)
}

func Seal(passphrase string, plaintext []byte) (*Envelope, error) {
	env := &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfName,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        make([]byte, kdfSaltSize),
		Nonce:       make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	aead, release, err := env.cipher(passphrase)
	if err != nil {
		return nil, err
	}
	defer release()
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, []byte(kdfName))
	return env, nil
}

func Open(passphrase string, env *Envelope) ([]byte, error) {
	if env == nil || env.Version != envelopeVersion || env.KDF != kdfName {
		return nil, ErrInvalid
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX || len(env.Salt) == 0 {
		return nil, ErrInvalid
	}
	if env.KDFTime == 0 || env.KDFMemoryKB == 0 || env.KDFThreads == 0 {
		return nil, ErrInvalid
	}
	aead, release, err := env.cipher(passphrase)
	if err != nil {
		return nil, err
	}
	defer release()
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(kdfName))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

func (e *Envelope) cipher(passphrase string) (aeadCipher, func(), error) {
	key := argon2.IDKey([]byte(passphrase), e.Salt, e.KDFTime, e.KDFMemoryKB, e.KDFThreads, chacha20poly1305.KeySize)
	release := func() { zeroBytes(key) }
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		release()
		return nil, nil, err
	}
	return aead, release, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
