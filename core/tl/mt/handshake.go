// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package mt

import (
	"github.com/katzenpost/mtproto/core/tl"
)

const (
	ReqPQMultiID          uint32 = 0xbe7e8ef1
	ResPQID               uint32 = 0x05162463
	PQInnerDataDCID       uint32 = 0xa9f55f95
	PQInnerDataTempDCID   uint32 = 0x56fddf88
	ReqDHParamsID         uint32 = 0xd712e4be
	ServerDHParamsFailID  uint32 = 0x79cb045d
	ServerDHParamsOkID    uint32 = 0xd0e8075c
	ServerDHInnerDataID   uint32 = 0xb5890dba
	ClientDHInnerDataID   uint32 = 0x6643b654
	SetClientDHParamsID   uint32 = 0xf5045f1f
	DHGenOkID             uint32 = 0x3bcbf734
	DHGenRetryID          uint32 = 0x46dc1fb9
	DHGenFailID           uint32 = 0xa69dae02
	BindAuthKeyInnerID    uint32 = 0x75a3f765
	AuthBindTempAuthKeyID uint32 = 0xcdd42a05
)

// ReqPQMulti is req_pq_multi.
type ReqPQMulti struct {
	Nonce tl.Int128
}

func (*ReqPQMulti) CRC() uint32 { return ReqPQMultiID }

func (*ReqPQMulti) TypeName() string { return "req_pq_multi" }

func (m *ReqPQMulti) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	return nil
}

func (m *ReqPQMulti) DecodeBare(d *tl.Decoder) (err error) {
	m.Nonce, err = d.Int128()
	return err
}

// ResPQ is the server answer to req_pq_multi.
type ResPQ struct {
	Nonce                       tl.Int128
	ServerNonce                 tl.Int128
	PQ                          []byte
	ServerPublicKeyFingerprints []int64
}

func (*ResPQ) CRC() uint32 { return ResPQID }

func (*ResPQ) TypeName() string { return "resPQ" }

func (m *ResPQ) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutBytes(m.PQ)
	e.PutLongVector(m.ServerPublicKeyFingerprints)
	return nil
}

func (m *ResPQ) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	if m.PQ, err = d.Bytes(); err != nil {
		return err
	}
	m.ServerPublicKeyFingerprints, err = d.LongVector()
	return err
}

// PQInnerData is p_q_inner_data_dc, or p_q_inner_data_temp_dc when
// ExpiresIn is non-zero.
type PQInnerData struct {
	PQ          []byte
	P           []byte
	Q           []byte
	Nonce       tl.Int128
	ServerNonce tl.Int128
	NewNonce    tl.Int256
	DC          int32
	ExpiresIn   int32
}

func (m *PQInnerData) CRC() uint32 {
	if m.ExpiresIn != 0 {
		return PQInnerDataTempDCID
	}
	return PQInnerDataDCID
}

func (m *PQInnerData) EncodeBare(e *tl.Encoder) error {
	e.PutBytes(m.PQ)
	e.PutBytes(m.P)
	e.PutBytes(m.Q)
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutInt256(m.NewNonce)
	e.PutInt32(m.DC)
	if m.ExpiresIn != 0 {
		e.PutInt32(m.ExpiresIn)
	}
	return nil
}

// DecodeBare decodes the permanent variant; the temporary variant is
// only ever produced by clients.
func (m *PQInnerData) DecodeBare(d *tl.Decoder) (err error) {
	if m.PQ, err = d.Bytes(); err != nil {
		return err
	}
	if m.P, err = d.Bytes(); err != nil {
		return err
	}
	if m.Q, err = d.Bytes(); err != nil {
		return err
	}
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	if m.NewNonce, err = d.Int256(); err != nil {
		return err
	}
	m.DC, err = d.Int32()
	return err
}

// ReqDHParams is req_DH_params.
type ReqDHParams struct {
	Nonce                tl.Int128
	ServerNonce          tl.Int128
	P                    []byte
	Q                    []byte
	PublicKeyFingerprint int64
	EncryptedData        []byte
}

func (*ReqDHParams) CRC() uint32 { return ReqDHParamsID }

func (*ReqDHParams) TypeName() string { return "req_DH_params" }

func (m *ReqDHParams) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutBytes(m.P)
	e.PutBytes(m.Q)
	e.PutInt64(m.PublicKeyFingerprint)
	e.PutBytes(m.EncryptedData)
	return nil
}

func (m *ReqDHParams) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	if m.P, err = d.Bytes(); err != nil {
		return err
	}
	if m.Q, err = d.Bytes(); err != nil {
		return err
	}
	if m.PublicKeyFingerprint, err = d.Int64(); err != nil {
		return err
	}
	m.EncryptedData, err = d.Bytes()
	return err
}

// ServerDHParamsOk carries the encrypted server_DH_inner_data.
type ServerDHParamsOk struct {
	Nonce           tl.Int128
	ServerNonce     tl.Int128
	EncryptedAnswer []byte
}

func (*ServerDHParamsOk) CRC() uint32 { return ServerDHParamsOkID }

func (*ServerDHParamsOk) TypeName() string { return "server_DH_params_ok" }

func (m *ServerDHParamsOk) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutBytes(m.EncryptedAnswer)
	return nil
}

func (m *ServerDHParamsOk) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	m.EncryptedAnswer, err = d.Bytes()
	return err
}

// ServerDHParamsFail is server_DH_params_fail.
type ServerDHParamsFail struct {
	Nonce        tl.Int128
	ServerNonce  tl.Int128
	NewNonceHash tl.Int128
}

func (*ServerDHParamsFail) CRC() uint32 { return ServerDHParamsFailID }

func (*ServerDHParamsFail) TypeName() string { return "server_DH_params_fail" }

func (m *ServerDHParamsFail) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutInt128(m.NewNonceHash)
	return nil
}

func (m *ServerDHParamsFail) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	m.NewNonceHash, err = d.Int128()
	return err
}

// ServerDHInnerData is the decrypted content of server_DH_params_ok.
type ServerDHInnerData struct {
	Nonce       tl.Int128
	ServerNonce tl.Int128
	G           int32
	DHPrime     []byte
	GA          []byte
	ServerTime  int32
}

func (*ServerDHInnerData) CRC() uint32 { return ServerDHInnerDataID }

func (*ServerDHInnerData) TypeName() string { return "server_DH_inner_data" }

func (m *ServerDHInnerData) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutInt32(m.G)
	e.PutBytes(m.DHPrime)
	e.PutBytes(m.GA)
	e.PutInt32(m.ServerTime)
	return nil
}

func (m *ServerDHInnerData) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	if m.G, err = d.Int32(); err != nil {
		return err
	}
	if m.DHPrime, err = d.Bytes(); err != nil {
		return err
	}
	if m.GA, err = d.Bytes(); err != nil {
		return err
	}
	m.ServerTime, err = d.Int32()
	return err
}

// ClientDHInnerData is client_DH_inner_data.
type ClientDHInnerData struct {
	Nonce       tl.Int128
	ServerNonce tl.Int128
	RetryID     int64
	GB          []byte
}

func (*ClientDHInnerData) CRC() uint32 { return ClientDHInnerDataID }

func (*ClientDHInnerData) TypeName() string { return "client_DH_inner_data" }

func (m *ClientDHInnerData) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutInt64(m.RetryID)
	e.PutBytes(m.GB)
	return nil
}

func (m *ClientDHInnerData) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	if m.RetryID, err = d.Int64(); err != nil {
		return err
	}
	m.GB, err = d.Bytes()
	return err
}

// SetClientDHParams is set_client_DH_params.
type SetClientDHParams struct {
	Nonce         tl.Int128
	ServerNonce   tl.Int128
	EncryptedData []byte
}

func (*SetClientDHParams) CRC() uint32 { return SetClientDHParamsID }

func (*SetClientDHParams) TypeName() string { return "set_client_DH_params" }

func (m *SetClientDHParams) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutBytes(m.EncryptedData)
	return nil
}

func (m *SetClientDHParams) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	m.EncryptedData, err = d.Bytes()
	return err
}

// DHGenResult is one of dh_gen_ok, dh_gen_retry or dh_gen_fail,
// distinguished by ID.
type DHGenResult struct {
	ID           uint32
	Nonce        tl.Int128
	ServerNonce  tl.Int128
	NewNonceHash tl.Int128
}

func (m *DHGenResult) CRC() uint32 { return m.ID }

func (m *DHGenResult) TypeName() string {
	switch m.ID {
	case DHGenOkID:
		return "dh_gen_ok"
	case DHGenRetryID:
		return "dh_gen_retry"
	default:
		return "dh_gen_fail"
	}
}

func (m *DHGenResult) EncodeBare(e *tl.Encoder) error {
	e.PutInt128(m.Nonce)
	e.PutInt128(m.ServerNonce)
	e.PutInt128(m.NewNonceHash)
	return nil
}

func (m *DHGenResult) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int128(); err != nil {
		return err
	}
	if m.ServerNonce, err = d.Int128(); err != nil {
		return err
	}
	m.NewNonceHash, err = d.Int128()
	return err
}

// BindAuthKeyInner is bind_auth_key_inner.
type BindAuthKeyInner struct {
	Nonce         int64
	TempAuthKeyID int64
	PermAuthKeyID int64
	TempSessionID int64
	ExpiresAt     int32
}

func (*BindAuthKeyInner) CRC() uint32 { return BindAuthKeyInnerID }

func (m *BindAuthKeyInner) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.Nonce)
	e.PutInt64(m.TempAuthKeyID)
	e.PutInt64(m.PermAuthKeyID)
	e.PutInt64(m.TempSessionID)
	e.PutInt32(m.ExpiresAt)
	return nil
}

func (m *BindAuthKeyInner) DecodeBare(d *tl.Decoder) (err error) {
	if m.Nonce, err = d.Int64(); err != nil {
		return err
	}
	if m.TempAuthKeyID, err = d.Int64(); err != nil {
		return err
	}
	if m.PermAuthKeyID, err = d.Int64(); err != nil {
		return err
	}
	if m.TempSessionID, err = d.Int64(); err != nil {
		return err
	}
	m.ExpiresAt, err = d.Int32()
	return err
}

// AuthBindTempAuthKey is auth.bindTempAuthKey, answered with a Bool.
type AuthBindTempAuthKey struct {
	PermAuthKeyID    int64
	Nonce            int64
	ExpiresAt        int32
	EncryptedMessage []byte
}

func (*AuthBindTempAuthKey) CRC() uint32 { return AuthBindTempAuthKeyID }

func (*AuthBindTempAuthKey) TypeName() string { return "auth.bindTempAuthKey" }

func (m *AuthBindTempAuthKey) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.PermAuthKeyID)
	e.PutInt64(m.Nonce)
	e.PutInt32(m.ExpiresAt)
	e.PutBytes(m.EncryptedMessage)
	return nil
}

func (m *AuthBindTempAuthKey) DecodeBare(d *tl.Decoder) (err error) {
	if m.PermAuthKeyID, err = d.Int64(); err != nil {
		return err
	}
	if m.Nonce, err = d.Int64(); err != nil {
		return err
	}
	if m.ExpiresAt, err = d.Int32(); err != nil {
		return err
	}
	m.EncryptedMessage, err = d.Bytes()
	return err
}
