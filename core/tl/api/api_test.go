// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/core/tl"
)

func TestUpdatesEnvelope(t *testing.T) {
	require := require.New(t)

	date := int32(1700000000)
	u := &Updates{
		Updates: []tl.Object{
			&UpdateDeleteMessages{Messages: []int32{1, 2}, Pts: 11, PtsCount: 2},
			&UpdateReadMessagesContents{Messages: []int32{3}, Pts: 12, PtsCount: 1, Date: &date},
			&UpdateDeleteChannelMessages{ChannelID: 5, Messages: []int32{9}, Pts: 100, PtsCount: 1},
		},
		Users: []tl.Object{},
		Chats: []tl.Object{},
		Date:  date,
		Seq:   4,
	}
	b, err := tl.Encode(u)
	require.NoError(err)

	o, err := tl.Decode(Registry, b)
	require.NoError(err)
	got := o.(*Updates)
	require.False(got.Combined)
	require.Equal(int32(4), got.SeqStart)
	require.Len(got.Updates, 3)

	pu, ok := got.Updates[1].(PtsUpdate)
	require.True(ok)
	require.Equal(int32(12), pu.GetPts())
	require.Equal(date, *got.Updates[1].(*UpdateReadMessagesContents).Date)

	cu, ok := got.Updates[2].(ChannelPtsUpdate)
	require.True(ok)
	require.Equal(int64(5), cu.GetChannelID())
}

func TestDifference(t *testing.T) {
	require := require.New(t)

	d := &UpdatesDifference{
		Slice:        true,
		OtherUpdates: []tl.Object{&UpdateDeleteMessages{Messages: []int32{7}, Pts: 12, PtsCount: 1}},
		State:        UpdatesState{Pts: 12, Qts: 1, Date: 2, Seq: 3},
	}
	b, err := tl.Encode(d)
	require.NoError(err)
	o, err := tl.Decode(Registry, b)
	require.NoError(err)
	got := o.(*UpdatesDifference)
	require.True(got.Slice)
	require.Equal(d.State, got.State)
	require.Empty(got.NewMessages)
	require.Len(got.OtherUpdates, 1)
}

func TestGetDifferenceFlags(t *testing.T) {
	require := require.New(t)

	limit := int32(1000)
	req := &UpdatesGetDifference{Pts: 10, PtsTotalLimit: &limit, Date: 5, Qts: 2}
	b, err := tl.Encode(req)
	require.NoError(err)
	// id, flags, pts, pts_total_limit, date, qts
	require.Len(b, 24)

	got := new(UpdatesGetDifference)
	require.NoError(tl.DecodeInto(nil, b, got))
	require.Nil(got.PtsLimit)
	require.Equal(limit, *got.PtsTotalLimit)
	require.Equal(int32(2), got.Qts)
}

func TestChannelDifference(t *testing.T) {
	require := require.New(t)

	timeout := int32(30)
	cd := &UpdatesChannelDifference{
		Final:        true,
		Pts:          101,
		Timeout:      &timeout,
		OtherUpdates: []tl.Object{&UpdateDeleteChannelMessages{ChannelID: 5, Pts: 101, PtsCount: 1}},
	}
	b, err := tl.Encode(cd)
	require.NoError(err)
	o, err := tl.Decode(Registry, b)
	require.NoError(err)
	got := o.(*UpdatesChannelDifference)
	require.True(got.Final)
	require.Equal(timeout, *got.Timeout)
	require.Len(got.OtherUpdates, 1)

	req := &UpdatesGetChannelDifference{Channel: &InputChannel{ChannelID: 5, AccessHash: 6}, Pts: 100, Limit: 100}
	b, err = tl.Encode(req)
	require.NoError(err)
	back := new(UpdatesGetChannelDifference)
	require.NoError(tl.DecodeInto(Registry, b, back))
	require.Equal(int64(6), back.Channel.(*InputChannel).AccessHash)
	require.IsType(&ChannelMessagesFilterEmpty{}, back.Filter)
}
