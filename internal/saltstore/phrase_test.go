package saltstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestPhraseRoundtrip(t *testing.T) {
	salt := Salt{Value: [Size]byte(bytes.Repeat([]byte{0xab}, Size))}
	phrase, err := Phrase(salt)
	if err != nil {
		t.Fatalf("phrase: %v", err)
	}
	if words := len(strings.Fields(phrase)); words != 24 {
		t.Fatalf("expected 24 words, got %d", words)
	}
	value, err := ParsePhrase("  " + strings.ReplaceAll(phrase, " ", "   ") + "\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if value != salt.Value {
		t.Fatal("phrase did not round-trip")
	}
}

func TestParsePhraseRejectsGarbage(t *testing.T) {
	for _, phrase := range []string{"", "not a mnemonic", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"} {
		if _, err := ParsePhrase(phrase); !errors.Is(err, ErrInvalidPhrase) {
			t.Fatalf("ParsePhrase(%q) err=%v, want ErrInvalidPhrase", phrase, err)
		}
	}
}

func TestRestoreInstallsAndRefusesConflicts(t *testing.T) {
	dir := t.TempDir()
	opts := Options{PrimaryPath: filepath.Join(dir, "p"), BackupPath: filepath.Join(dir, "b")}

	want := Salt{Value: [Size]byte(bytes.Repeat([]byte{0x11}, Size))}
	phrase, err := Phrase(want)
	if err != nil {
		t.Fatalf("phrase: %v", err)
	}

	restored, err := New(opts).Restore(phrase)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Value != want.Value || restored.Path != opts.PrimaryPath {
		t.Fatalf("unexpected restored salt at %s", restored.Path)
	}

	again, err := New(opts).Restore(phrase)
	if err != nil {
		t.Fatalf("restore same phrase: %v", err)
	}
	if again.Source != SourcePrimary {
		t.Fatalf("restoring the same salt should be a no-op, got %s", again.Source)
	}

	other, err := Phrase(Salt{Value: [Size]byte(bytes.Repeat([]byte{0x22}, Size))})
	if err != nil {
		t.Fatalf("phrase: %v", err)
	}
	if _, err := New(opts).Restore(other); !errors.Is(err, ErrSaltExists) {
		t.Fatalf("expected ErrSaltExists, got %v", err)
	}

	got, err := New(opts).GetOrCreate()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != want.Value {
		t.Fatal("conflicting restore must not replace the installed salt")
	}
}
