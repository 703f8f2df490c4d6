// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package updates

import (
	"strconv"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/tl/api"
)

const stateKey = "updates.state"

// State is the stored account wide update state.
type State struct {
	Pts  int32 `cbor:"1,keyasint"`
	Qts  int32 `cbor:"2,keyasint"`
	Date int32 `cbor:"3,keyasint"`
	Seq  int32 `cbor:"4,keyasint"`
}

func stateFrom(s *api.UpdatesState) State {
	return State{Pts: s.Pts, Qts: s.Qts, Date: s.Date, Seq: s.Seq}
}

func channelKey(id int64) string {
	return "updates.channel." + strconv.FormatInt(id, 10)
}

// LoadState returns the stored account wide state.
func LoadState(s storage.Storage) (State, error) {
	var st State
	err := storage.LoadValue(s, stateKey, &st)
	return st, err
}

// LoadChannelPts returns the stored pts of a channel.
func LoadChannelPts(s storage.Storage, channelID int64) (int32, error) {
	var pts int32
	err := storage.LoadValue(s, channelKey(channelID), &pts)
	return pts, err
}
