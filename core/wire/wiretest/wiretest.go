// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package wiretest implements the server side of the encrypted envelope,
// for tests that script a server.
package wiretest

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
	"github.com/katzenpost/mtproto/core/wire"
)

var errMsgKey = errors.New("wiretest: msg_key mismatch")

// ServerEnvelope encrypts body in the server to client direction.
func ServerEnvelope(k *wire.AuthKey, salt, sessionID, msgID int64, seqNo int32, body []byte) ([]byte, error) {
	pt := make([]byte, 32+len(body))
	binary.LittleEndian.PutUint64(pt[0:], uint64(salt))
	binary.LittleEndian.PutUint64(pt[8:], uint64(sessionID))
	binary.LittleEndian.PutUint64(pt[16:], uint64(msgID))
	binary.LittleEndian.PutUint32(pt[24:], uint32(seqNo))
	binary.LittleEndian.PutUint32(pt[28:], uint32(len(body)))
	copy(pt[32:], body)
	pad := 12
	if r := (len(pt) + pad) % 16; r != 0 {
		pad += 16 - r
	}
	pt = append(pt, bytes.Repeat([]byte{0x5a}, pad)...)

	key := k.Bytes()
	msgKey := kdf.MessageKey(key, pt, true)
	aesKey, iv := kdf.MessageKeyIV(key, msgKey[:], true)
	ct, err := ige.Encrypt(aesKey, iv, pt)
	if err != nil {
		return nil, err
	}
	id := k.ID()
	out := append([]byte(nil), id[:]...)
	out = append(out, msgKey[:]...)
	return append(out, ct...), nil
}

// OpenClientEnvelope decrypts a client envelope as the server would.
func OpenClientEnvelope(k *wire.AuthKey, env []byte) (*wire.Message, error) {
	if len(env) < 24+32 || (len(env)-24)%16 != 0 {
		return nil, wire.ErrShortEnvelope
	}
	key := k.Bytes()
	msgKey := env[8:24]
	aesKey, iv := kdf.MessageKeyIV(key, msgKey, false)
	pt, err := ige.Decrypt(aesKey, iv, env[24:])
	if err != nil {
		return nil, err
	}
	expected := kdf.MessageKey(key, pt, false)
	if !bytes.Equal(expected[:], msgKey) {
		return nil, errMsgKey
	}
	n := binary.LittleEndian.Uint32(pt[28:])
	if int(n) > len(pt)-32 {
		return nil, wire.ErrBadLength
	}
	return &wire.Message{
		Salt:      int64(binary.LittleEndian.Uint64(pt[0:])),
		SessionID: int64(binary.LittleEndian.Uint64(pt[8:])),
		MsgID:     int64(binary.LittleEndian.Uint64(pt[16:])),
		SeqNo:     int32(binary.LittleEndian.Uint32(pt[24:])),
		Body:      pt[32 : 32+n],
	}, nil
}
