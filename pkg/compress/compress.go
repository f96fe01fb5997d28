// SPDX-FileCopyrightText: 2026 The RiftNet Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package compress shrinks packet bodies with xz framing. An xz frame is
// self-identifying through its magic prefix, so a receiver can always tell a
// compressed body from raw bytes without out-of-band signaling.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// ErrDecompressFailed marks a body carrying the xz prefix which could not be
// decompressed.
var ErrDecompressFailed = errors.New("decompression of a framed body failed")

// xzMagic is the prefix of every xz frame.
var xzMagic = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}

// IsCompressed checks if p starts with the xz magic prefix.
func IsCompressed(p []byte) bool {
	return bytes.HasPrefix(p, xzMagic)
}

// Compress frames p as xz if this shrinks it, otherwise p is returned
// unmodified. Raw bytes which happen to start with the xz magic are always
// framed, so Decompress stays an exact inverse. Empty bodies pass through.
func Compress(p []byte) []byte {
	if len(p) == 0 {
		return p
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return p
	}
	if _, err := w.Write(p); err != nil {
		return p
	}
	if err := w.Close(); err != nil {
		return p
	}

	if buf.Len() >= len(p) && !IsCompressed(p) {
		return p
	}
	return buf.Bytes()
}

// Decompress undoes Compress: bodies carrying the xz prefix are unframed,
// everything else passes through untouched.
func Decompress(p []byte) ([]byte, error) {
	if !IsCompressed(p) {
		return p, nil
	}

	r, err := xz.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}

	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}

	return plain, nil
}
