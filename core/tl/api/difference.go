// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"github.com/katzenpost/mtproto/core/tl"
)

const (
	UpdatesGetStateID                 uint32 = 0xedd4882a
	UpdatesStateID                    uint32 = 0xa56c2a3e
	UpdatesGetDifferenceID            uint32 = 0x19c2f763
	UpdatesDifferenceEmptyID          uint32 = 0x5d75a138
	UpdatesDifferenceID               uint32 = 0x00f49ca0
	UpdatesDifferenceSliceID          uint32 = 0xa8fb1981
	UpdatesDifferenceTooLongID        uint32 = 0x4afe8f6d
	UpdatesGetChannelDifferenceID     uint32 = 0x03173d78
	UpdatesChannelDifferenceEmptyID   uint32 = 0x3e11affb
	UpdatesChannelDifferenceTooLongID uint32 = 0xa4bcc6fe
	UpdatesChannelDifferenceID        uint32 = 0x2064674e
	InputChannelID                    uint32 = 0xf35aec28
	ChannelMessagesFilterEmptyID      uint32 = 0x94d42ee7
)

// DialogPts is implemented by dialog objects that expose their pts, as
// returned inside updates.channelDifferenceTooLong.
type DialogPts interface {
	DialogPts() (int32, bool)
}

// UpdatesGetState is updates.getState.
type UpdatesGetState struct{}

func (*UpdatesGetState) CRC() uint32 { return UpdatesGetStateID }

func (*UpdatesGetState) TypeName() string { return "updates.getState" }

func (*UpdatesGetState) EncodeBare(*tl.Encoder) error { return nil }

func (*UpdatesGetState) DecodeBare(*tl.Decoder) error { return nil }

// UpdatesState is updates.state.
type UpdatesState struct {
	Pts         int32
	Qts         int32
	Date        int32
	Seq         int32
	UnreadCount int32
}

func (*UpdatesState) CRC() uint32 { return UpdatesStateID }

func (*UpdatesState) TypeName() string { return "updates.state" }

func (m *UpdatesState) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(m.Pts)
	e.PutInt32(m.Qts)
	e.PutInt32(m.Date)
	e.PutInt32(m.Seq)
	e.PutInt32(m.UnreadCount)
	return nil
}

func (m *UpdatesState) DecodeBare(d *tl.Decoder) (err error) {
	for _, p := range []*int32{&m.Pts, &m.Qts, &m.Date, &m.Seq, &m.UnreadCount} {
		if *p, err = d.Int32(); err != nil {
			return err
		}
	}
	return nil
}

// UpdatesGetDifference is updates.getDifference.
type UpdatesGetDifference struct {
	Pts           int32
	PtsLimit      *int32
	PtsTotalLimit *int32
	Date          int32
	Qts           int32
	QtsLimit      *int32
}

func (*UpdatesGetDifference) CRC() uint32 { return UpdatesGetDifferenceID }

func (*UpdatesGetDifference) TypeName() string { return "updates.getDifference" }

func (m *UpdatesGetDifference) EncodeBare(e *tl.Encoder) error {
	var flags int32
	if m.PtsTotalLimit != nil {
		flags |= 1 << 0
	}
	if m.PtsLimit != nil {
		flags |= 1 << 1
	}
	if m.QtsLimit != nil {
		flags |= 1 << 2
	}
	e.PutInt32(flags)
	e.PutInt32(m.Pts)
	if m.PtsLimit != nil {
		e.PutInt32(*m.PtsLimit)
	}
	if m.PtsTotalLimit != nil {
		e.PutInt32(*m.PtsTotalLimit)
	}
	e.PutInt32(m.Date)
	e.PutInt32(m.Qts)
	if m.QtsLimit != nil {
		e.PutInt32(*m.QtsLimit)
	}
	return nil
}

func (m *UpdatesGetDifference) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	opt := func(bit uint) (*int32, error) {
		if flags&(1<<bit) == 0 {
			return nil, nil
		}
		v, err := d.Int32()
		return &v, err
	}
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	if m.PtsLimit, err = opt(1); err != nil {
		return err
	}
	if m.PtsTotalLimit, err = opt(0); err != nil {
		return err
	}
	if m.Date, err = d.Int32(); err != nil {
		return err
	}
	if m.Qts, err = d.Int32(); err != nil {
		return err
	}
	m.QtsLimit, err = opt(2)
	return err
}

// UpdatesDifferenceEmpty is updates.differenceEmpty.
type UpdatesDifferenceEmpty struct {
	Date int32
	Seq  int32
}

func (*UpdatesDifferenceEmpty) CRC() uint32 { return UpdatesDifferenceEmptyID }

func (*UpdatesDifferenceEmpty) TypeName() string { return "updates.differenceEmpty" }

func (m *UpdatesDifferenceEmpty) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(m.Date)
	e.PutInt32(m.Seq)
	return nil
}

func (m *UpdatesDifferenceEmpty) DecodeBare(d *tl.Decoder) (err error) {
	if m.Date, err = d.Int32(); err != nil {
		return err
	}
	m.Seq, err = d.Int32()
	return err
}

// UpdatesDifference is updates.difference, or updates.differenceSlice
// when Slice is set (State is then the intermediate state).
type UpdatesDifference struct {
	Slice                bool
	NewMessages          []tl.Object
	NewEncryptedMessages []tl.Object
	OtherUpdates         []tl.Object
	Chats                []tl.Object
	Users                []tl.Object
	State                UpdatesState
}

func (m *UpdatesDifference) CRC() uint32 {
	if m.Slice {
		return UpdatesDifferenceSliceID
	}
	return UpdatesDifferenceID
}

func (m *UpdatesDifference) TypeName() string {
	if m.Slice {
		return "updates.differenceSlice"
	}
	return "updates.difference"
}

func (m *UpdatesDifference) EncodeBare(e *tl.Encoder) error {
	for _, v := range [][]tl.Object{m.NewMessages, m.NewEncryptedMessages, m.OtherUpdates, m.Chats, m.Users} {
		if err := e.PutObjectVector(v); err != nil {
			return err
		}
	}
	return e.PutObject(&m.State)
}

func (m *UpdatesDifference) DecodeBare(d *tl.Decoder) (err error) {
	for _, v := range []*[]tl.Object{&m.NewMessages, &m.NewEncryptedMessages, &m.OtherUpdates, &m.Chats, &m.Users} {
		if *v, err = d.ObjectVector(); err != nil {
			return err
		}
	}
	return d.DecodeBoxed(&m.State)
}

// UpdatesDifferenceTooLong is updates.differenceTooLong.
type UpdatesDifferenceTooLong struct {
	Pts int32
}

func (*UpdatesDifferenceTooLong) CRC() uint32 { return UpdatesDifferenceTooLongID }

func (*UpdatesDifferenceTooLong) TypeName() string { return "updates.differenceTooLong" }

func (m *UpdatesDifferenceTooLong) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(m.Pts)
	return nil
}

func (m *UpdatesDifferenceTooLong) DecodeBare(d *tl.Decoder) (err error) {
	m.Pts, err = d.Int32()
	return err
}

// InputChannel is inputChannel.
type InputChannel struct {
	ChannelID  int64
	AccessHash int64
}

func (*InputChannel) CRC() uint32 { return InputChannelID }

func (m *InputChannel) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.ChannelID)
	e.PutInt64(m.AccessHash)
	return nil
}

func (m *InputChannel) DecodeBare(d *tl.Decoder) (err error) {
	if m.ChannelID, err = d.Int64(); err != nil {
		return err
	}
	m.AccessHash, err = d.Int64()
	return err
}

// ChannelMessagesFilterEmpty is channelMessagesFilterEmpty.
type ChannelMessagesFilterEmpty struct{}

func (*ChannelMessagesFilterEmpty) CRC() uint32 { return ChannelMessagesFilterEmptyID }

func (*ChannelMessagesFilterEmpty) EncodeBare(*tl.Encoder) error { return nil }

func (*ChannelMessagesFilterEmpty) DecodeBare(*tl.Decoder) error { return nil }

// UpdatesGetChannelDifference is updates.getChannelDifference.
type UpdatesGetChannelDifference struct {
	Force   bool
	Channel tl.Object
	Filter  tl.Object
	Pts     int32
	Limit   int32
}

func (*UpdatesGetChannelDifference) CRC() uint32 { return UpdatesGetChannelDifferenceID }

func (*UpdatesGetChannelDifference) TypeName() string { return "updates.getChannelDifference" }

func (m *UpdatesGetChannelDifference) EncodeBare(e *tl.Encoder) error {
	var flags int32
	if m.Force {
		flags |= 1
	}
	e.PutInt32(flags)
	if err := e.PutObject(m.Channel); err != nil {
		return err
	}
	filter := m.Filter
	if filter == nil {
		filter = &ChannelMessagesFilterEmpty{}
	}
	if err := e.PutObject(filter); err != nil {
		return err
	}
	e.PutInt32(m.Pts)
	e.PutInt32(m.Limit)
	return nil
}

func (m *UpdatesGetChannelDifference) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	m.Force = flags&1 != 0
	if m.Channel, err = d.Object(); err != nil {
		return err
	}
	if m.Filter, err = d.Object(); err != nil {
		return err
	}
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	m.Limit, err = d.Int32()
	return err
}

// UpdatesChannelDifferenceEmpty is updates.channelDifferenceEmpty.
type UpdatesChannelDifferenceEmpty struct {
	Final   bool
	Pts     int32
	Timeout *int32
}

func (*UpdatesChannelDifferenceEmpty) CRC() uint32 { return UpdatesChannelDifferenceEmptyID }

func (*UpdatesChannelDifferenceEmpty) TypeName() string { return "updates.channelDifferenceEmpty" }

func (m *UpdatesChannelDifferenceEmpty) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(finalTimeoutFlags(m.Final, m.Timeout))
	e.PutInt32(m.Pts)
	if m.Timeout != nil {
		e.PutInt32(*m.Timeout)
	}
	return nil
}

func (m *UpdatesChannelDifferenceEmpty) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	m.Final = flags&1 != 0
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	m.Timeout, err = decodeTimeout(d, flags)
	return err
}

// UpdatesChannelDifferenceTooLong is updates.channelDifferenceTooLong.
type UpdatesChannelDifferenceTooLong struct {
	Final    bool
	Timeout  *int32
	Dialog   tl.Object
	Messages []tl.Object
	Chats    []tl.Object
	Users    []tl.Object
}

func (*UpdatesChannelDifferenceTooLong) CRC() uint32 { return UpdatesChannelDifferenceTooLongID }

func (*UpdatesChannelDifferenceTooLong) TypeName() string { return "updates.channelDifferenceTooLong" }

func (m *UpdatesChannelDifferenceTooLong) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(finalTimeoutFlags(m.Final, m.Timeout))
	if m.Timeout != nil {
		e.PutInt32(*m.Timeout)
	}
	if err := e.PutObject(m.Dialog); err != nil {
		return err
	}
	for _, v := range [][]tl.Object{m.Messages, m.Chats, m.Users} {
		if err := e.PutObjectVector(v); err != nil {
			return err
		}
	}
	return nil
}

func (m *UpdatesChannelDifferenceTooLong) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	m.Final = flags&1 != 0
	if m.Timeout, err = decodeTimeout(d, flags); err != nil {
		return err
	}
	if m.Dialog, err = d.Object(); err != nil {
		return err
	}
	for _, v := range []*[]tl.Object{&m.Messages, &m.Chats, &m.Users} {
		if *v, err = d.ObjectVector(); err != nil {
			return err
		}
	}
	return nil
}

// UpdatesChannelDifference is updates.channelDifference.
type UpdatesChannelDifference struct {
	Final        bool
	Pts          int32
	Timeout      *int32
	NewMessages  []tl.Object
	OtherUpdates []tl.Object
	Chats        []tl.Object
	Users        []tl.Object
}

func (*UpdatesChannelDifference) CRC() uint32 { return UpdatesChannelDifferenceID }

func (*UpdatesChannelDifference) TypeName() string { return "updates.channelDifference" }

func (m *UpdatesChannelDifference) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(finalTimeoutFlags(m.Final, m.Timeout))
	e.PutInt32(m.Pts)
	if m.Timeout != nil {
		e.PutInt32(*m.Timeout)
	}
	for _, v := range [][]tl.Object{m.NewMessages, m.OtherUpdates, m.Chats, m.Users} {
		if err := e.PutObjectVector(v); err != nil {
			return err
		}
	}
	return nil
}

func (m *UpdatesChannelDifference) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	m.Final = flags&1 != 0
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	if m.Timeout, err = decodeTimeout(d, flags); err != nil {
		return err
	}
	for _, v := range []*[]tl.Object{&m.NewMessages, &m.OtherUpdates, &m.Chats, &m.Users} {
		if *v, err = d.ObjectVector(); err != nil {
			return err
		}
	}
	return nil
}

func finalTimeoutFlags(final bool, timeout *int32) int32 {
	var flags int32
	if final {
		flags |= 1 << 0
	}
	if timeout != nil {
		flags |= 1 << 1
	}
	return flags
}

func decodeTimeout(d *tl.Decoder, flags int32) (*int32, error) {
	if flags&(1<<1) == 0 {
		return nil, nil
	}
	v, err := d.Int32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
