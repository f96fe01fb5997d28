// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package security

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceLen is the wire size of the sender-chosen nonce leading every
	// encrypted datagram.
	NonceLen = 8

	// Overhead is the AEAD tag size appended to every ciphertext.
	Overhead = chacha20poly1305.Overhead

	// NonceWindow is the default for how far ahead of the last accepted
	// receive nonce a datagram may claim to be. Everything outside is
	// dropped, which bounds the replay surface while tolerating small
	// reorder.
	NonceWindow = 5
)

// ErrDecryptFailed marks a datagram which could not be authenticated, either
// because its nonce lies outside the receive window or because the AEAD tag
// does not verify.
var ErrDecryptFailed = errors.New("decryption failed")

// Channel is the AEAD layer of one connection. Every call to Seal consumes a
// fresh transmit nonce; Open enforces the receive nonce window. A Channel is
// safe for concurrent use.
type Channel struct {
	mutex sync.Mutex

	rxCipher cipher.AEAD
	txCipher cipher.AEAD

	// txNonce is the next nonce Seal will stamp. Strictly increasing, never
	// reused, not even for retransmissions.
	txNonce uint64

	// lastRxNonce is the highest nonce Open accepted so far.
	lastRxNonce uint64

	// window is the forward acceptance range for receive nonces.
	window uint64
}

// NewChannel builds a Channel from the directional session keys of a
// completed key agreement. A nonceWindow of zero selects NonceWindow.
func NewChannel(keys SessionKeys, nonceWindow uint64) (*Channel, error) {
	rxCipher, err := chacha20poly1305.New(keys.Rx[:])
	if err != nil {
		return nil, fmt.Errorf("rx cipher: %w", err)
	}

	txCipher, err := chacha20poly1305.New(keys.Tx[:])
	if err != nil {
		return nil, fmt.Errorf("tx cipher: %w", err)
	}

	if nonceWindow == 0 {
		nonceWindow = NonceWindow
	}

	return &Channel{
		rxCipher: rxCipher,
		txCipher: txCipher,
		txNonce:  1,
		window:   nonceWindow,
	}, nil
}

// expandNonce writes the 64-bit wire nonce into the low-order bytes of the
// AEAD nonce, leading bytes zero.
func expandNonce(nonce uint64) []byte {
	expanded := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(expanded[chacha20poly1305.NonceSize-8:], nonce)
	return expanded
}

// Seal encrypts one framed plaintext datagram under the next transmit nonce
// and returns the full wire form: the 8-byte big-endian nonce followed by the
// ciphertext and tag.
func (ch *Channel) Seal(plaintext []byte) []byte {
	ch.mutex.Lock()
	nonce := ch.txNonce
	ch.txNonce++
	ch.mutex.Unlock()

	wire := make([]byte, NonceLen, NonceLen+len(plaintext)+chacha20poly1305.Overhead)
	binary.BigEndian.PutUint64(wire, nonce)

	return ch.txCipher.Seal(wire, expandNonce(nonce), plaintext, nil)
}

// Open authenticates and decrypts one wire datagram. The claimed nonce must
// lie within (lastRxNonce, lastRxNonce+window]; on success the receive
// watermark advances to it, so a nonce is accepted at most once.
func (ch *Channel) Open(wire []byte) ([]byte, error) {
	if len(wire) < NonceLen+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: datagram of %d bytes is too short", ErrDecryptFailed, len(wire))
	}

	nonce := binary.BigEndian.Uint64(wire[:NonceLen])

	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if nonce <= ch.lastRxNonce || nonce > ch.lastRxNonce+ch.window {
		return nil, fmt.Errorf("%w: nonce %d outside window (%d, %d]",
			ErrDecryptFailed, nonce, ch.lastRxNonce, ch.lastRxNonce+ch.window)
	}

	plaintext, err := ch.rxCipher.Open(nil, expandNonce(nonce), wire[NonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	ch.lastRxNonce = nonce
	return plaintext, nil
}

// TxNonce returns the next transmit nonce, for diagnostics.
func (ch *Channel) TxNonce() uint64 {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	return ch.txNonce
}

// LastRxNonce returns the receive watermark, for diagnostics.
func (ch *Channel) LastRxNonce() uint64 {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	return ch.lastRxNonce
}
