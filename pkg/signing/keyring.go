// Package signing manages the Ed25519 signing keys used by the audit log
// and capability store.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// KeyPair holds an Ed25519 signing key. It MUST be zeroized once the process
// no longer needs it; Close (and the finalizer installed at construction)
// overwrite the private key bytes.
type KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a fresh, random key pair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return newKeyPair(pub, priv), nil
}

// LoadOrGenerate loads a hex-encoded Ed25519 private key from path, or
// generates and persists a new one if the file does not exist. The parent
// directory is created with 0700 permissions; the key file is written 0600.
func LoadOrGenerate(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		seed, decErr := hex.DecodeString(string(data))
		if decErr != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signing key at %s is corrupt", path)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		return newKeyPair(pub, priv), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read signing key %s: %w", path, err)
	}

	kp, genErr := Generate()
	if genErr != nil {
		return nil, genErr
	}
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr != nil {
		return nil, fmt.Errorf("create key directory: %w", mkErr)
	}
	seedHex := hex.EncodeToString(kp.priv.Seed())
	if writeErr := os.WriteFile(path, []byte(seedHex), 0o600); writeErr != nil {
		return nil, fmt.Errorf("persist signing key %s: %w", path, writeErr)
	}
	return kp, nil
}

func newKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *KeyPair {
	kp := &KeyPair{pub: pub, priv: priv}
	runtime.SetFinalizer(kp, (*KeyPair).Zero)
	return kp
}

// Sign signs data with the private key.
func (k *KeyPair) Sign(data []byte) []byte {
	return ed25519.Sign(k.priv, data)
}

// Verify checks a signature against this key pair's public key.
func (k *KeyPair) Verify(data, sig []byte) bool {
	return ed25519.Verify(k.pub, data, sig)
}

// PublicKey returns the public key bytes.
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return k.pub
}

// Zero overwrites the private key material. Safe to call more than once.
func (k *KeyPair) Zero() {
	for i := range k.priv {
		k.priv[i] = 0
	}
}

// VerifyWith checks a signature against an arbitrary public key, used when
// verifying tokens signed by a key pair not held in memory (e.g. after a
// restart where only the public key was retained alongside the token).
func VerifyWith(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
