// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"encoding/binary"
	"io"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
)

const plainHeaderSize = 20

// EncodePlain builds an unencrypted envelope, used only for the key
// exchange: a zero auth_key_id, the msg_id, the length and the payload.
func EncodePlain(msgID int64, payload []byte) []byte {
	b := make([]byte, plainHeaderSize+len(payload))
	binary.LittleEndian.PutUint64(b[8:], uint64(msgID))
	binary.LittleEndian.PutUint32(b[16:], uint32(len(payload)))
	copy(b[plainHeaderSize:], payload)
	return b
}

// DecodePlain parses an unencrypted envelope.
func DecodePlain(b []byte) (msgID int64, payload []byte, err error) {
	if len(b) < plainHeaderSize {
		return 0, nil, errPlainTooShort
	}
	if binary.LittleEndian.Uint64(b[0:]) != 0 {
		return 0, nil, errPlainKeyID
	}
	msgID = int64(binary.LittleEndian.Uint64(b[8:]))
	n := binary.LittleEndian.Uint32(b[16:])
	if uint64(n) > uint64(len(b)-plainHeaderSize) {
		return 0, nil, errPlainLength
	}
	return msgID, b[plainHeaderSize : plainHeaderSize+int(n)], nil
}

// IsPlain reports whether b carries a zero auth_key_id.
func IsPlain(b []byte) bool {
	return len(b) >= 8 && binary.LittleEndian.Uint64(b) == 0
}

// EncryptBindMessage encrypts bind_auth_key_inner with the permanent key
// using the MTProto 1.0 envelope: random salt and session id, the given
// msg_id, seq_no 0, msg_key = SHA1(plaintext)[4:20] and the SHA1 based
// key derivation.
func EncryptBindMessage(r io.Reader, perm *AuthKey, msgID int64, payload []byte) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	body := make([]byte, 32+len(payload))
	if _, err := io.ReadFull(r, body[:16]); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(body[16:], uint64(msgID))
	binary.LittleEndian.PutUint32(body[28:], uint32(len(payload)))
	copy(body[32:], payload)

	sum := kdf.SHA1(body)
	msgKey := sum[4:20]

	padded := body
	if rem := len(body) % 16; rem != 0 {
		pad := make([]byte, 16-rem)
		if _, err := io.ReadFull(r, pad); err != nil {
			return nil, err
		}
		padded = append(padded, pad...)
	}

	key, iv := kdf.MessageKeyIVv1(perm.key[:], msgKey, false)
	ct, err := ige.Encrypt(key, iv, padded)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, envelopeStart+len(ct))
	out = append(out, perm.id[:]...)
	out = append(out, msgKey...)
	return append(out, ct...), nil
}
