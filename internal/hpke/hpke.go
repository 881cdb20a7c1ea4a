// Package hpke implements a single-shot, base-mode hybrid public-key
// encryption construction (X25519 + HKDF-SHA256 + ChaCha20-Poly1305), in the
// style of RFC 9180's base mode restricted to one-shot seal/open. No
// RFC 9180-conformant library is available anywhere in this codebase's
// dependency set, so the construction is assembled directly from
// golang.org/x/crypto primitives the same way avahowell-occlude's OPAQUE-like
// key exchange derives its shared secret and channel keys: ECDH into a
// fixed-size secret, then HKDF to split that secret into the keys a
// downstream AEAD actually uses.
//
// This is used for connection packages, connection offers and joiner-info
// payloads — anywhere a sender needs to encrypt to a recipient's long-lived
// public key without a prior interactive handshake.
package hpke

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// infoLabel domain-separates this construction's key schedule from any
	// other HKDF use in the codebase (the credential chain's canonical
	// encoding, for instance, never feeds this function).
	infoLabel = "phnx-hpke-v1"

	PublicKeySize  = curve25519.PointSize
	PrivateKeySize = curve25519.ScalarSize
)

// KeyPair is an X25519 encryption keypair, distinct from the Ed25519 signing
// KeyPair in internal/credentials: encryption and signing keys are never the
// same key in this system.
type KeyPair struct {
	Public  [PublicKeySize]byte
	Private [PrivateKeySize]byte
}

// GenerateKeyPair creates a fresh X25519 keypair.
func GenerateKeyPair() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, fmt.Errorf("hpke: generating private key: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("hpke: deriving public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Sealed is a self-contained ciphertext: the ephemeral public key the
// recipient needs to reconstruct the shared secret, plus the AEAD output.
type Sealed struct {
	EncappedKey [PublicKeySize]byte
	Ciphertext  []byte
}

// Seal encrypts plaintext to recipientPublic, authenticating aad. A fresh
// ephemeral X25519 keypair is generated per call, so repeated calls to the
// same recipient never reuse a key.
func Seal(recipientPublic [PublicKeySize]byte, plaintext, aad []byte) (Sealed, error) {
	ephemeral, err := GenerateKeyPair()
	if err != nil {
		return Sealed{}, err
	}

	sharedSecret, err := curve25519.X25519(ephemeral.Private[:], recipientPublic[:])
	if err != nil {
		return Sealed{}, fmt.Errorf("hpke: ephemeral ECDH: %w", err)
	}

	aead, err := newAEAD(sharedSecret, ephemeral.Public[:], recipientPublic[:])
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	return Sealed{EncappedKey: ephemeral.Public, Ciphertext: ciphertext}, nil
}

// Open decrypts a Sealed value using the recipient's private key, verifying
// aad. It fails closed: any mismatch returns an error rather than partial
// plaintext.
func Open(recipientPrivate [PrivateKeySize]byte, recipientPublic [PublicKeySize]byte, sealed Sealed, aad []byte) ([]byte, error) {
	sharedSecret, err := curve25519.X25519(recipientPrivate[:], sealed.EncappedKey[:])
	if err != nil {
		return nil, fmt.Errorf("hpke: ECDH: %w", err)
	}

	aead, err := newAEAD(sharedSecret, sealed.EncappedKey[:], recipientPublic[:])
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	plaintext, err := aead.Open(nil, nonce, sealed.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("hpke: open failed (wrong key or tampered ciphertext): %w", err)
	}
	return plaintext, nil
}

// newAEAD derives the ChaCha20-Poly1305 key for one seal/open exchange from
// the ECDH shared secret, binding both the ephemeral and recipient public
// keys into the HKDF info so a transcript substitution changes the derived
// key. The nonce is always the all-zero nonce: each derived key is used for
// exactly one Seal/Open call, so there is no reuse to guard against.
func newAEAD(sharedSecret, encappedKey, recipientPublic []byte) (cipher.AEAD, error) {
	info := append([]byte(infoLabel), encappedKey...)
	info = append(info, recipientPublic...)

	kdf := hkdf.New(sha256.New, sharedSecret, nil, info)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("hpke: deriving AEAD key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("hpke: constructing AEAD: %w", err)
	}
	return aead, nil
}
