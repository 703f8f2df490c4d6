// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package api holds the subset of the application schema the protocol
// core depends on: update envelopes, the pts carrying updates that drive
// sequencing and the difference methods used for catch-up.  Everything
// else (messages, users, chats) is resolved through a caller supplied
// registry merged with Registry.
package api

import (
	"github.com/katzenpost/mtproto/core/tl"
)

const (
	UpdatesTooLongID              uint32 = 0xe317af7e
	UpdateShortID                 uint32 = 0x78d4dec1
	UpdatesID                     uint32 = 0x74ae4240
	UpdatesCombinedID             uint32 = 0x725b04c3
	UpdateDeleteMessagesID        uint32 = 0xa20db0e5
	UpdateDeleteChannelMessagesID uint32 = 0xc32d5b12
	UpdateReadMessagesContentsID  uint32 = 0xf8227181
	UpdateChannelTooLongID        uint32 = 0x108d941f
)

// PtsUpdate is an update that advances the account-wide pts.
type PtsUpdate interface {
	tl.Object
	GetPts() int32
	GetPtsCount() int32
}

// ChannelPtsUpdate is an update that advances the pts of one channel.
type ChannelPtsUpdate interface {
	PtsUpdate
	GetChannelID() int64
}

// UpdatesTooLong is updatesTooLong: the client must fetch the difference.
type UpdatesTooLong struct{}

func (*UpdatesTooLong) CRC() uint32 { return UpdatesTooLongID }

func (*UpdatesTooLong) TypeName() string { return "updatesTooLong" }

func (*UpdatesTooLong) EncodeBare(*tl.Encoder) error { return nil }

func (*UpdatesTooLong) DecodeBare(*tl.Decoder) error { return nil }

// UpdateShort is updateShort.
type UpdateShort struct {
	Update tl.Object
	Date   int32
}

func (*UpdateShort) CRC() uint32 { return UpdateShortID }

func (*UpdateShort) TypeName() string { return "updateShort" }

func (m *UpdateShort) EncodeBare(e *tl.Encoder) error {
	if err := e.PutObject(m.Update); err != nil {
		return err
	}
	e.PutInt32(m.Date)
	return nil
}

func (m *UpdateShort) DecodeBare(d *tl.Decoder) (err error) {
	if m.Update, err = d.Object(); err != nil {
		return err
	}
	m.Date, err = d.Int32()
	return err
}

// Updates is updates, or updatesCombined when Combined is set.
type Updates struct {
	Combined bool
	Updates  []tl.Object
	Users    []tl.Object
	Chats    []tl.Object
	Date     int32
	SeqStart int32
	Seq      int32
}

func (m *Updates) CRC() uint32 {
	if m.Combined {
		return UpdatesCombinedID
	}
	return UpdatesID
}

func (m *Updates) TypeName() string {
	if m.Combined {
		return "updatesCombined"
	}
	return "updates"
}

func (m *Updates) EncodeBare(e *tl.Encoder) error {
	if err := e.PutObjectVector(m.Updates); err != nil {
		return err
	}
	if err := e.PutObjectVector(m.Users); err != nil {
		return err
	}
	if err := e.PutObjectVector(m.Chats); err != nil {
		return err
	}
	e.PutInt32(m.Date)
	if m.Combined {
		e.PutInt32(m.SeqStart)
	}
	e.PutInt32(m.Seq)
	return nil
}

func (m *Updates) DecodeBare(d *tl.Decoder) (err error) {
	if m.Updates, err = d.ObjectVector(); err != nil {
		return err
	}
	if m.Users, err = d.ObjectVector(); err != nil {
		return err
	}
	if m.Chats, err = d.ObjectVector(); err != nil {
		return err
	}
	if m.Date, err = d.Int32(); err != nil {
		return err
	}
	if m.Combined {
		if m.SeqStart, err = d.Int32(); err != nil {
			return err
		}
	}
	if m.Seq, err = d.Int32(); err != nil {
		return err
	}
	if !m.Combined {
		m.SeqStart = m.Seq
	}
	return nil
}

// UpdateDeleteMessages is updateDeleteMessages.
type UpdateDeleteMessages struct {
	Messages []int32
	Pts      int32
	PtsCount int32
}

func (*UpdateDeleteMessages) CRC() uint32 { return UpdateDeleteMessagesID }

func (*UpdateDeleteMessages) TypeName() string { return "updateDeleteMessages" }

func (m *UpdateDeleteMessages) GetPts() int32 { return m.Pts }

func (m *UpdateDeleteMessages) GetPtsCount() int32 { return m.PtsCount }

func (m *UpdateDeleteMessages) EncodeBare(e *tl.Encoder) error {
	e.PutIntVector(m.Messages)
	e.PutInt32(m.Pts)
	e.PutInt32(m.PtsCount)
	return nil
}

func (m *UpdateDeleteMessages) DecodeBare(d *tl.Decoder) (err error) {
	if m.Messages, err = d.IntVector(); err != nil {
		return err
	}
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	m.PtsCount, err = d.Int32()
	return err
}

// UpdateDeleteChannelMessages is updateDeleteChannelMessages.
type UpdateDeleteChannelMessages struct {
	ChannelID int64
	Messages  []int32
	Pts       int32
	PtsCount  int32
}

func (*UpdateDeleteChannelMessages) CRC() uint32 { return UpdateDeleteChannelMessagesID }

func (*UpdateDeleteChannelMessages) TypeName() string { return "updateDeleteChannelMessages" }

func (m *UpdateDeleteChannelMessages) GetPts() int32 { return m.Pts }

func (m *UpdateDeleteChannelMessages) GetPtsCount() int32 { return m.PtsCount }

func (m *UpdateDeleteChannelMessages) GetChannelID() int64 { return m.ChannelID }

func (m *UpdateDeleteChannelMessages) EncodeBare(e *tl.Encoder) error {
	e.PutInt64(m.ChannelID)
	e.PutIntVector(m.Messages)
	e.PutInt32(m.Pts)
	e.PutInt32(m.PtsCount)
	return nil
}

func (m *UpdateDeleteChannelMessages) DecodeBare(d *tl.Decoder) (err error) {
	if m.ChannelID, err = d.Int64(); err != nil {
		return err
	}
	if m.Messages, err = d.IntVector(); err != nil {
		return err
	}
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	m.PtsCount, err = d.Int32()
	return err
}

// UpdateReadMessagesContents is updateReadMessagesContents.
type UpdateReadMessagesContents struct {
	Messages []int32
	Pts      int32
	PtsCount int32
	Date     *int32
}

func (*UpdateReadMessagesContents) CRC() uint32 { return UpdateReadMessagesContentsID }

func (*UpdateReadMessagesContents) TypeName() string { return "updateReadMessagesContents" }

func (m *UpdateReadMessagesContents) GetPts() int32 { return m.Pts }

func (m *UpdateReadMessagesContents) GetPtsCount() int32 { return m.PtsCount }

func (m *UpdateReadMessagesContents) EncodeBare(e *tl.Encoder) error {
	var flags int32
	if m.Date != nil {
		flags |= 1
	}
	e.PutInt32(flags)
	e.PutIntVector(m.Messages)
	e.PutInt32(m.Pts)
	e.PutInt32(m.PtsCount)
	if m.Date != nil {
		e.PutInt32(*m.Date)
	}
	return nil
}

func (m *UpdateReadMessagesContents) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	if m.Messages, err = d.IntVector(); err != nil {
		return err
	}
	if m.Pts, err = d.Int32(); err != nil {
		return err
	}
	if m.PtsCount, err = d.Int32(); err != nil {
		return err
	}
	if flags&1 != 0 {
		date, err := d.Int32()
		if err != nil {
			return err
		}
		m.Date = &date
	}
	return nil
}

// UpdateChannelTooLong is updateChannelTooLong: the channel difference
// must be fetched.
type UpdateChannelTooLong struct {
	ChannelID int64
	Pts       *int32
}

func (*UpdateChannelTooLong) CRC() uint32 { return UpdateChannelTooLongID }

func (*UpdateChannelTooLong) TypeName() string { return "updateChannelTooLong" }

func (m *UpdateChannelTooLong) EncodeBare(e *tl.Encoder) error {
	var flags int32
	if m.Pts != nil {
		flags |= 1
	}
	e.PutInt32(flags)
	e.PutInt64(m.ChannelID)
	if m.Pts != nil {
		e.PutInt32(*m.Pts)
	}
	return nil
}

func (m *UpdateChannelTooLong) DecodeBare(d *tl.Decoder) error {
	flags, err := d.Int32()
	if err != nil {
		return err
	}
	if m.ChannelID, err = d.Int64(); err != nil {
		return err
	}
	if flags&1 != 0 {
		pts, err := d.Int32()
		if err != nil {
			return err
		}
		m.Pts = &pts
	}
	return nil
}
