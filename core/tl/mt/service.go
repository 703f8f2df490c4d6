// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package mt

import (
	"github.com/katzenpost/mtproto/core/tl"
)

const (
	RPCResultID               uint32 = 0xf35c6d01
	RPCErrorID                uint32 = 0x2144ca19
	RPCAnswerUnknownID        uint32 = 0x5e2ad36e
	RPCAnswerDroppedRunningID uint32 = 0xcd78e586
	RPCAnswerDroppedID        uint32 = 0xa43ad8b7
	RPCDropAnswerID           uint32 = 0x58e4a740
	MsgsAckID                 uint32 = 0x62d6b459
	BadMsgNotificationID      uint32 = 0xa7eff811
	BadServerSaltID           uint32 = 0xedab447b
	NewSessionCreatedID       uint32 = 0x9ec20908
	PingID                    uint32 = 0x7abe77ec
	PingDelayDisconnectID     uint32 = 0xf3427b8c
	PongID                    uint32 = 0x347773c5
	MsgsStateReqID            uint32 = 0xda69fb52
	MsgsStateInfoID           uint32 = 0x04deb57d
	MsgsAllInfoID             uint32 = 0x8cc0d131
	MsgDetailedInfoID         uint32 = 0x276d3ec6
	MsgNewDetailedInfoID      uint32 = 0x809db6df
	MsgResendReqID            uint32 = 0x7d861a08
	GetFutureSaltsID          uint32 = 0xb921bd04
	FutureSaltsID             uint32 = 0xae500895
	DestroySessionID          uint32 = 0xe7512126
	DestroySessionOkID        uint32 = 0xe22045fc
	DestroySessionNoneID      uint32 = 0x62d350c9
)

// RPCResult is rpc_result.  Result holds the raw boxed answer, which is
// decoded by whoever knows the expected type.
type RPCResult struct {
	ReqMsgID int64
	Result   []byte
}

func (*RPCResult) CRC() uint32 { return RPCResultID }

func (*RPCResult) TypeName() string { return "rpc_result" }

func (m *RPCResult) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.ReqMsgID)
	e.PutRaw(m.Result)
	return nil
}

// DecodeBare consumes the rest of the decoder as the result body.
func (m *RPCResult) DecodeBare(d *tl.Decoder) (err error) {
	if m.ReqMsgID, err = d.Int64(); err != nil {
		return err
	}
	m.Result = append([]byte(nil), d.Rest()...)
	return nil
}

// RPCError is rpc_error.
type RPCError struct {
	ErrorCode    int32
	ErrorMessage string
}

func (*RPCError) CRC() uint32 { return RPCErrorID }

func (*RPCError) TypeName() string { return "rpc_error" }

func (m *RPCError) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(m.ErrorCode)
	e.PutString(m.ErrorMessage)
	return nil
}

func (m *RPCError) DecodeBare(d *tl.Decoder) (err error) {
	if m.ErrorCode, err = d.Int32(); err != nil {
		return err
	}
	m.ErrorMessage, err = d.String()
	return err
}

// RPCDropAnswer is rpc_drop_answer.
type RPCDropAnswer struct {
	ReqMsgID int64
}

func (*RPCDropAnswer) CRC() uint32 { return RPCDropAnswerID }

func (m *RPCDropAnswer) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.ReqMsgID)
	return nil
}

func (m *RPCDropAnswer) DecodeBare(d *tl.Decoder) (err error) {
	m.ReqMsgID, err = d.Int64()
	return err
}

// RPCAnswer is one of the RpcDropAnswer results.  Only the dropped
// variant carries fields.
type RPCAnswer struct {
	ID    uint32
	MsgID int64
	SeqNo int32
	Bytes int32
}

func (m *RPCAnswer) CRC() uint32 { return m.ID }

func (m *RPCAnswer) EncodeBare(e *tl.Encoder) error {
	if m.ID == RPCAnswerDroppedID {
		e.PutInt64(m.MsgID)
		e.PutInt32(m.SeqNo)
		e.PutInt32(m.Bytes)
	}
	return nil
}

func (m *RPCAnswer) DecodeBare(d *tl.Decoder) (err error) {
	if m.ID != RPCAnswerDroppedID {
		return nil
	}
	if m.MsgID, err = d.Int64(); err != nil {
		return err
	}
	if m.SeqNo, err = d.Int32(); err != nil {
		return err
	}
	m.Bytes, err = d.Int32()
	return err
}

// MsgsAck is msgs_ack.
type MsgsAck struct {
	MsgIDs []int64
}

func (*MsgsAck) CRC() uint32 { return MsgsAckID }

func (*MsgsAck) TypeName() string { return "msgs_ack" }

func (m *MsgsAck) EncodeBare(e *tl.Encoder) error {
	e.PutLongVector(m.MsgIDs)
	return nil
}

func (m *MsgsAck) DecodeBare(d *tl.Decoder) (err error) {
	m.MsgIDs, err = d.LongVector()
	return err
}

// BadMsgNotification is bad_msg_notification.
type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (*BadMsgNotification) CRC() uint32 { return BadMsgNotificationID }

func (*BadMsgNotification) TypeName() string { return "bad_msg_notification" }

func (m *BadMsgNotification) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.BadMsgID)
	e.PutInt32(m.BadMsgSeqNo)
	e.PutInt32(m.ErrorCode)
	return nil
}

func (m *BadMsgNotification) DecodeBare(d *tl.Decoder) (err error) {
	if m.BadMsgID, err = d.Int64(); err != nil {
		return err
	}
	if m.BadMsgSeqNo, err = d.Int32(); err != nil {
		return err
	}
	m.ErrorCode, err = d.Int32()
	return err
}

// BadServerSalt is bad_server_salt.
type BadServerSalt struct {
	BadMsgID      int64
	BadMsgSeqNo   int32
	ErrorCode     int32
	NewServerSalt int64
}

func (*BadServerSalt) CRC() uint32 { return BadServerSaltID }

func (*BadServerSalt) TypeName() string { return "bad_server_salt" }

func (m *BadServerSalt) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.BadMsgID)
	e.PutInt32(m.BadMsgSeqNo)
	e.PutInt32(m.ErrorCode)
	e.PutInt64(m.NewServerSalt)
	return nil
}

func (m *BadServerSalt) DecodeBare(d *tl.Decoder) (err error) {
	if m.BadMsgID, err = d.Int64(); err != nil {
		return err
	}
	if m.BadMsgSeqNo, err = d.Int32(); err != nil {
		return err
	}
	if m.ErrorCode, err = d.Int32(); err != nil {
		return err
	}
	m.NewServerSalt, err = d.Int64()
	return err
}

// NewSessionCreated is new_session_created.
type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (*NewSessionCreated) CRC() uint32 { return NewSessionCreatedID }

func (*NewSessionCreated) TypeName() string { return "new_session_created" }

func (m *NewSessionCreated) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.FirstMsgID)
	e.PutInt64(m.UniqueID)
	e.PutInt64(m.ServerSalt)
	return nil
}

func (m *NewSessionCreated) DecodeBare(d *tl.Decoder) (err error) {
	if m.FirstMsgID, err = d.Int64(); err != nil {
		return err
	}
	if m.UniqueID, err = d.Int64(); err != nil {
		return err
	}
	m.ServerSalt, err = d.Int64()
	return err
}

// Ping is ping.
type Ping struct {
	PingID int64
}

func (*Ping) CRC() uint32 { return PingID }

func (m *Ping) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.PingID)
	return nil
}

func (m *Ping) DecodeBare(d *tl.Decoder) (err error) {
	m.PingID, err = d.Int64()
	return err
}

// PingDelayDisconnect is ping_delay_disconnect.  The server closes the
// connection if no further ping arrives within DisconnectDelay seconds.
type PingDelayDisconnect struct {
	PingID          int64
	DisconnectDelay int32
}

func (*PingDelayDisconnect) CRC() uint32 { return PingDelayDisconnectID }

func (m *PingDelayDisconnect) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.PingID)
	e.PutInt32(m.DisconnectDelay)
	return nil
}

func (m *PingDelayDisconnect) DecodeBare(d *tl.Decoder) (err error) {
	if m.PingID, err = d.Int64(); err != nil {
		return err
	}
	m.DisconnectDelay, err = d.Int32()
	return err
}

// Pong is pong.
type Pong struct {
	MsgID  int64
	PingID int64
}

func (*Pong) CRC() uint32 { return PongID }

func (*Pong) TypeName() string { return "pong" }

func (m *Pong) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.MsgID)
	e.PutInt64(m.PingID)
	return nil
}

func (m *Pong) DecodeBare(d *tl.Decoder) (err error) {
	if m.MsgID, err = d.Int64(); err != nil {
		return err
	}
	m.PingID, err = d.Int64()
	return err
}

// MsgIDList is the shape shared by msgs_state_req and msg_resend_req.
type MsgIDList struct {
	ID     uint32
	MsgIDs []int64
}

func (m *MsgIDList) CRC() uint32 { return m.ID }

func (m *MsgIDList) EncodeBare(e *tl.Encoder) error {
	e.PutLongVector(m.MsgIDs)
	return nil
}

func (m *MsgIDList) DecodeBare(d *tl.Decoder) (err error) {
	m.MsgIDs, err = d.LongVector()
	return err
}

// MsgsStateInfo is msgs_state_info.
type MsgsStateInfo struct {
	ReqMsgID int64
	Info     []byte
}

func (*MsgsStateInfo) CRC() uint32 { return MsgsStateInfoID }

func (m *MsgsStateInfo) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.ReqMsgID)
	e.PutBytes(m.Info)
	return nil
}

func (m *MsgsStateInfo) DecodeBare(d *tl.Decoder) (err error) {
	if m.ReqMsgID, err = d.Int64(); err != nil {
		return err
	}
	m.Info, err = d.Bytes()
	return err
}

// MsgsAllInfo is msgs_all_info.
type MsgsAllInfo struct {
	MsgIDs []int64
	Info   []byte
}

func (*MsgsAllInfo) CRC() uint32 { return MsgsAllInfoID }

func (m *MsgsAllInfo) EncodeBare(e *tl.Encoder) error {
	e.PutLongVector(m.MsgIDs)
	e.PutBytes(m.Info)
	return nil
}

func (m *MsgsAllInfo) DecodeBare(d *tl.Decoder) (err error) {
	if m.MsgIDs, err = d.LongVector(); err != nil {
		return err
	}
	m.Info, err = d.Bytes()
	return err
}

// MsgDetailedInfo is msg_detailed_info, or msg_new_detailed_info when
// MsgID is zero.
type MsgDetailedInfo struct {
	ID          uint32
	MsgID       int64
	AnswerMsgID int64
	Bytes       int32
	Status      int32
}

func (m *MsgDetailedInfo) CRC() uint32 { return m.ID }

func (m *MsgDetailedInfo) EncodeBare(e *tl.Encoder) error {
	if m.ID == MsgDetailedInfoID {
		e.PutInt64(m.MsgID)
	}
	e.PutInt64(m.AnswerMsgID)
	e.PutInt32(m.Bytes)
	e.PutInt32(m.Status)
	return nil
}

func (m *MsgDetailedInfo) DecodeBare(d *tl.Decoder) (err error) {
	if m.ID == MsgDetailedInfoID {
		if m.MsgID, err = d.Int64(); err != nil {
			return err
		}
	}
	if m.AnswerMsgID, err = d.Int64(); err != nil {
		return err
	}
	if m.Bytes, err = d.Int32(); err != nil {
		return err
	}
	m.Status, err = d.Int32()
	return err
}

// GetFutureSalts is get_future_salts.
type GetFutureSalts struct {
	Num int32
}

func (*GetFutureSalts) CRC() uint32 { return GetFutureSaltsID }

func (m *GetFutureSalts) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(m.Num)
	return nil
}

func (m *GetFutureSalts) DecodeBare(d *tl.Decoder) (err error) {
	m.Num, err = d.Int32()
	return err
}

// FutureSalt is the bare future_salt.
type FutureSalt struct {
	ValidSince int32
	ValidUntil int32
	Salt       int64
}

// FutureSalts is future_salts.
type FutureSalts struct {
	ReqMsgID int64
	Now      int32
	Salts    []FutureSalt
}

func (*FutureSalts) CRC() uint32 { return FutureSaltsID }

func (m *FutureSalts) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.ReqMsgID)
	e.PutInt32(m.Now)
	e.PutInt32(int32(len(m.Salts)))
	for _, s := range m.Salts {
		e.PutInt32(s.ValidSince)
		e.PutInt32(s.ValidUntil)
		e.PutInt64(s.Salt)
	}
	return nil
}

func (m *FutureSalts) DecodeBare(d *tl.Decoder) (err error) {
	if m.ReqMsgID, err = d.Int64(); err != nil {
		return err
	}
	if m.Now, err = d.Int32(); err != nil {
		return err
	}
	n, err := d.BareVectorHeader(16)
	if err != nil {
		return err
	}
	m.Salts = make([]FutureSalt, n)
	for i := range m.Salts {
		s := &m.Salts[i]
		if s.ValidSince, err = d.Int32(); err != nil {
			return err
		}
		if s.ValidUntil, err = d.Int32(); err != nil {
			return err
		}
		if s.Salt, err = d.Int64(); err != nil {
			return err
		}
	}
	return nil
}

// DestroySession is destroy_session.
type DestroySession struct {
	SessionID int64
}

func (*DestroySession) CRC() uint32 { return DestroySessionID }

func (m *DestroySession) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.SessionID)
	return nil
}

func (m *DestroySession) DecodeBare(d *tl.Decoder) (err error) {
	m.SessionID, err = d.Int64()
	return err
}

// DestroySessionRes is destroy_session_ok or destroy_session_none.
type DestroySessionRes struct {
	ID        uint32
	SessionID int64
}

func (m *DestroySessionRes) CRC() uint32 { return m.ID }

func (m *DestroySessionRes) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.SessionID)
	return nil
}

func (m *DestroySessionRes) DecodeBare(d *tl.Decoder) (err error) {
	m.SessionID, err = d.Int64()
	return err
}
