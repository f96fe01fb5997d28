// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package security provides the ephemeral key agreement and the AEAD channel
// encrypting every post-handshake datagram.
package security

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

// KeyLen is the byte length of public keys, private keys and session keys.
const KeyLen = 32

// ErrKeyAgreementFailed marks a key derivation which produced no usable keys,
// e.g., for a low-order peer public key.
var ErrKeyAgreementFailed = errors.New("key agreement failed")

// Role distinguishes the two sides of a key agreement. The derivation is
// cross-matched: the Responder's rx key equals the Initiator's tx key and
// vice versa.
type Role int

const (
	// Initiator is the connecting side, the client.
	Initiator Role = iota

	// Responder is the accepting side, the server.
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "INVALID"
	}
}

// SessionKeys are the two directional symmetric keys of one session.
type SessionKeys struct {
	Rx [KeyLen]byte
	Tx [KeyLen]byte
}

// KeyExchange holds one ephemeral X25519 keypair. The private key never
// leaves this struct; both keys are discarded with the session.
type KeyExchange struct {
	publicKey  [KeyLen]byte
	privateKey [KeyLen]byte
}

// NewKeyExchange generates a fresh ephemeral keypair.
func NewKeyExchange() (*KeyExchange, error) {
	kx := &KeyExchange{}

	if _, err := rand.Read(kx.privateKey[:]); err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}

	public, err := curve25519.X25519(kx.privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	copy(kx.publicKey[:], public)

	return kx, nil
}

// PublicKey returns the local ephemeral public key, sent in the clear during
// the handshake.
func (kx *KeyExchange) PublicKey() [KeyLen]byte {
	return kx.publicKey
}

// Derive combines the local private key with the peer's public key into the
// directional session keys. Both sides hash the shared point together with
// the initiator's and responder's public keys and split the digest: the
// initiator reads rx first, the responder reads tx first.
func (kx *KeyExchange) Derive(peerPublic [KeyLen]byte, role Role) (SessionKeys, error) {
	var keys SessionKeys

	shared, err := curve25519.X25519(kx.privateKey[:], peerPublic[:])
	if err != nil {
		return keys, fmt.Errorf("%w: %v", ErrKeyAgreementFailed, err)
	}

	h, err := blake2b.New512(nil)
	if err != nil {
		return keys, fmt.Errorf("%w: %v", ErrKeyAgreementFailed, err)
	}

	h.Write(shared)
	switch role {
	case Initiator:
		h.Write(kx.publicKey[:])
		h.Write(peerPublic[:])
	case Responder:
		h.Write(peerPublic[:])
		h.Write(kx.publicKey[:])
	default:
		return keys, fmt.Errorf("%w: unknown role %d", ErrKeyAgreementFailed, role)
	}

	digest := h.Sum(nil)
	if role == Initiator {
		copy(keys.Rx[:], digest[:KeyLen])
		copy(keys.Tx[:], digest[KeyLen:])
	} else {
		copy(keys.Tx[:], digest[:KeyLen])
		copy(keys.Rx[:], digest[KeyLen:])
	}

	return keys, nil
}
