// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package authkey

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/wire"
)

// BindRequest builds the auth.bindTempAuthKey call binding temp to perm.
// It must be sent through a session using temp, as a message with
// exactly msgID.
func BindRequest(r io.Reader, perm, temp *wire.AuthKey, tempSessionID, msgID int64) (*mt.AuthBindTempAuthKey, error) {
	if r == nil {
		r = rand.Reader
	}
	var nb [8]byte
	if _, err := io.ReadFull(r, nb[:]); err != nil {
		return nil, err
	}
	nonce := int64(binary.LittleEndian.Uint64(nb[:]))
	expiresAt := int32(temp.ExpiresAt.Unix())
	if temp.ExpiresAt.IsZero() {
		expiresAt = int32(time.Now().Add(24 * time.Hour).Unix())
	}

	inner, err := tl.Encode(&mt.BindAuthKeyInner{
		Nonce:         nonce,
		TempAuthKeyID: int64(temp.IDUint64()),
		PermAuthKeyID: int64(perm.IDUint64()),
		TempSessionID: tempSessionID,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return nil, err
	}
	enc, err := wire.EncryptBindMessage(r, perm, msgID, inner)
	if err != nil {
		return nil, err
	}
	return &mt.AuthBindTempAuthKey{
		PermAuthKeyID:    int64(perm.IDUint64()),
		Nonce:            nonce,
		ExpiresAt:        expiresAt,
		EncryptedMessage: enc,
	}, nil
}
