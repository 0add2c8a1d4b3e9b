package fingerprint

import "strings"

// Separator joins rendered identifiers. Changing it changes every derived key.
const Separator = "|"

type Source string

const (
	SourceCamera  Source = "camera"
	SourceSerial  Source = "serial"
	SourceMAC     Source = "mac"
	SourceMachine Source = "machine"
)

type Identifier struct {
	Source Source
	Value  string
}

func (id Identifier) String() string {
	return string(id.Source) + ":" + id.Value
}

// Fingerprint is an ordered list of identifiers. Order is significant: it
// is part of the key derivation input, so two fingerprints with the same
// identifiers in a different order derive different keys.
type Fingerprint []Identifier

func (f Fingerprint) String() string {
	parts := make([]string, len(f))
	for i, id := range f {
		parts[i] = id.String()
	}
	return strings.Join(parts, Separator)
}

// Bytes is the UTF-8 key derivation input.
func (f Fingerprint) Bytes() []byte {
	return []byte(f.String())
}

func (f Fingerprint) Sources() []Source {
	out := make([]Source, len(f))
	for i, id := range f {
		out[i] = id.Source
	}
	return out
}
