package credentials

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// SignatureScheme enumerates the signature algorithms a credential may use.
// Only Ed25519 is implemented; the type exists so additional schemes can be
// added without changing every call site (per the capability-trait design
// note: signers/verifiers are picked by capability, not by subclassing).
type SignatureScheme int

const (
	Ed25519 SignatureScheme = iota
)

// KeyPair is a generated signing keypair plus the scheme it was minted for.
type KeyPair struct {
	Scheme  SignatureScheme
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh signing keypair for scheme.
func GenerateKeyPair(scheme SignatureScheme) (KeyPair, error) {
	if scheme != Ed25519 {
		return KeyPair{}, fmt.Errorf("credentials: unsupported signature scheme %d", scheme)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("credentials: generating keypair: %w", err)
	}
	return KeyPair{Scheme: scheme, Public: pub, Private: priv}, nil
}

// Sign produces a detached signature over body.
func (kp KeyPair) Sign(body []byte) []byte {
	return ed25519.Sign(kp.Private, body)
}

// verify checks sig over body under verifyingKey.
func verify(verifyingKey ed25519.PublicKey, body, sig []byte) error {
	if !ed25519.Verify(verifyingKey, body, sig) {
		return apierrors.Authenticationf("signature", "signature verification failed", nil)
	}
	return nil
}

// canonical encodes fields into a deterministic byte string for signing and
// fingerprinting. Each field is length-prefixed so no ambiguity arises from
// concatenating variable-length values (the TLS-codec style used for the
// MLS-facing wire types in the DS, applied here to the credential chain).
func canonical(fields ...[]byte) []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		buf.Write(lenBuf[:])
		buf.Write(f)
	}
	return buf.Bytes()
}

func timeBytes(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.Unix()))
	return buf[:]
}

// rootBody returns the canonical bytes an AsRootCredential's self-signature
// covers.
func rootBody(domain string, verifyingKey ed25519.PublicKey, notAfter time.Time) []byte {
	return canonical([]byte(domain), verifyingKey, timeBytes(notAfter))
}

// intermediateBody returns the canonical bytes an AsIntermediateCredential's
// signature (made by the root) covers.
func intermediateBody(domain string, verifyingKey ed25519.PublicKey, notAfter time.Time) []byte {
	return canonical([]byte("intermediate"), []byte(domain), verifyingKey, timeBytes(notAfter))
}

// clientBody returns the canonical bytes a ClientCredential's signature
// (made by the active intermediate) covers.
func clientBody(userID ids.UserId, verifyingKey ed25519.PublicKey, notAfter time.Time) []byte {
	return canonical([]byte("client"), []byte(userID.String()), verifyingKey, timeBytes(notAfter))
}

// SignClientBody signs a client credential body with an intermediate's
// keypair (the KeyPair returned by Manager.IssueIntermediate at mint time),
// producing the same signature Manager.IssueClientCredential makes through
// its Signer argument; Manager itself never holds intermediate private keys.
func SignClientBody(intermediateKp KeyPair, userID ids.UserId, verifyingKey ed25519.PublicKey, notAfter time.Time) []byte {
	return intermediateKp.Sign(clientBody(userID, verifyingKey, notAfter))
}

// leafBody returns the canonical bytes a LeafCredential's signature (made by
// the client credential) covers.
func leafBody(verifyingKey ed25519.PublicKey, wrappedIdentity []byte, notAfter time.Time) []byte {
	return canonical([]byte("leaf"), verifyingKey, wrappedIdentity, timeBytes(notAfter))
}
