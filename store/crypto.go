package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// KeySize is the required symmetric key length: AES-256.
const KeySize = 32

// gcmTagSize is the length of the GCM authentication tag, stored as a
// separate envelope field.
const gcmTagSize = 16

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("store: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("store: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("store: init GCM: %w", err)
	}
	return aead, nil
}

// seal encrypts payload with a fresh random nonce, returning the nonce,
// ciphertext, and authentication tag as separate slices.
func seal(aead cipher.AEAD, payload []byte) (nonce, ciphertext, tag []byte, err error) {
	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("store: generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, payload, nil)
	split := len(sealed) - gcmTagSize
	return nonce, sealed[:split], sealed[split:], nil
}

// open decrypts and authenticates an envelope's ciphertext+tag. Any failure
// (wrong key, corruption, tampering) surfaces as an error for the caller to
// treat as an undecodable record.
func open(aead cipher.AEAD, nonce, ciphertext, tag []byte) ([]byte, error) {
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("store: bad nonce length %d", len(nonce))
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	payload, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt record: %w", err)
	}
	return payload, nil
}
