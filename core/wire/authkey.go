// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"crypto/subtle"
	"encoding/binary"
	"io"
	"time"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
)

const (
	// AuthKeySize is the size of an auth key in bytes.
	AuthKeySize = 256

	// MaxPayloadSize is the largest message body that may be wrapped.
	MaxPayloadSize = 1044404

	// MaxExtraPaddingBlocks is the most extra 16 byte padding blocks that
	// still fit the 1024 byte padding limit after alignment.
	MaxExtraPaddingBlocks = (maxPadding - minPadding - 15) / 16

	headerSize    = 32
	envelopeStart = 24
	minPadding    = 12
	maxPadding    = 1024
)

// AuthKey is a 2048-bit shared secret together with the values derived
// from it.
type AuthKey struct {
	key [AuthKeySize]byte
	id  [8]byte

	// ExpiresAt is set for temporary keys.
	ExpiresAt time.Time
}

// NewAuthKey returns an AuthKey for b, which must be AuthKeySize bytes.
func NewAuthKey(b []byte) (*AuthKey, error) {
	if len(b) != AuthKeySize {
		return nil, errInvalidKeySize
	}
	k := new(AuthKey)
	copy(k.key[:], b)
	sum := kdf.SHA1(b)
	copy(k.id[:], sum[12:20])
	return k, nil
}

// Bytes returns a copy of the key material.
func (k *AuthKey) Bytes() []byte {
	return append([]byte(nil), k.key[:]...)
}

// ID returns the auth_key_id as it appears on the wire.
func (k *AuthKey) ID() [8]byte {
	return k.id
}

// IDUint64 returns the auth_key_id as a little-endian integer.
func (k *AuthKey) IDUint64() uint64 {
	return binary.LittleEndian.Uint64(k.id[:])
}

// ClientSalt is the part of the key mixed into outgoing message keys.
func (k *AuthKey) ClientSalt() []byte {
	return k.key[88:120]
}

// ServerSalt is the part of the key mixed into incoming message keys.
func (k *AuthKey) ServerSalt() []byte {
	return k.key[96:128]
}

// Temporary reports whether the key has an expiry.
func (k *AuthKey) Temporary() bool {
	return !k.ExpiresAt.IsZero()
}

// Equal compares key material in constant time.
func (k *AuthKey) Equal(other *AuthKey) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.key[:], other.key[:]) == 1
}

// Message is a decrypted message envelope.
type Message struct {
	Salt      int64
	SessionID int64
	MsgID     int64
	SeqNo     int32
	Body      []byte
}

// paddingSize returns 12 to 27 bytes of padding aligning a plaintext of n
// bytes to the AES block size, plus extra random blocks, never more than
// 1024 bytes in total.
func paddingSize(n, extraBlocks int) int {
	p := (n + minPadding) % 16
	pad := minPadding
	if p != 0 {
		pad += 16 - p
	}
	extraBlocks = max(0, min(extraBlocks, (maxPadding-pad)/16))
	return pad + 16*extraBlocks
}

// Encrypt builds an encrypted envelope carrying message, which is the
// msg_id, seq_no, length and body already serialized.
func (k *AuthKey) Encrypt(r io.Reader, salt, sessionID int64, message []byte, extraBlocks int) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	pad := paddingSize(16+len(message), extraBlocks)
	buf := make([]byte, 16+len(message)+pad)
	binary.LittleEndian.PutUint64(buf[0:], uint64(salt))
	binary.LittleEndian.PutUint64(buf[8:], uint64(sessionID))
	copy(buf[16:], message)
	if _, err := io.ReadFull(r, buf[16+len(message):]); err != nil {
		return nil, err
	}

	msgKey := kdf.MessageKey(k.key[:], buf, false)
	aesKey, iv := kdf.MessageKeyIV(k.key[:], msgKey[:], false)
	ct, err := ige.Encrypt(aesKey, iv, buf)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, envelopeStart+len(ct))
	out = append(out, k.id[:]...)
	out = append(out, msgKey[:]...)
	return append(out, ct...), nil
}

// Decrypt opens an envelope sent by the server and performs the checks
// that depend only on the key and the session id: msg_key, session id,
// length and padding.  Trailing bytes that do not form a whole AES block
// are ignored, since padded transports may append them.
func (k *AuthKey) Decrypt(env []byte, sessionID int64) (*Message, error) {
	if len(env) < envelopeStart+headerSize {
		return nil, ErrShortEnvelope
	}
	if subtle.ConstantTimeCompare(env[:8], k.id[:]) != 1 {
		return nil, ErrUnknownAuthKey
	}
	msgKey := env[8:envelopeStart]
	ct := env[envelopeStart:]
	ct = ct[:len(ct)-len(ct)%16]

	aesKey, iv := kdf.MessageKeyIV(k.key[:], msgKey, true)
	pt, err := ige.Decrypt(aesKey, iv, ct)
	if err != nil {
		return nil, err
	}
	expected := kdf.MessageKey(k.key[:], pt, true)
	if subtle.ConstantTimeCompare(expected[:], msgKey) != 1 {
		return nil, ErrMsgKeyMismatch
	}

	m := &Message{
		Salt:      int64(binary.LittleEndian.Uint64(pt[0:])),
		SessionID: int64(binary.LittleEndian.Uint64(pt[8:])),
		MsgID:     int64(binary.LittleEndian.Uint64(pt[16:])),
		SeqNo:     int32(binary.LittleEndian.Uint32(pt[24:])),
	}
	if m.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}
	length := binary.LittleEndian.Uint32(pt[28:])
	if uint64(length) > uint64(len(pt)-headerSize) || length%4 != 0 {
		return nil, ErrBadLength
	}
	pad := len(pt) - headerSize - int(length)
	if pad < minPadding || pad > maxPadding {
		return nil, ErrBadPadding
	}
	m.Body = pt[headerSize : headerSize+int(length)]
	return m, nil
}
