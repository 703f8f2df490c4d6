// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"github.com/katzenpost/mtproto/core/tl"
)

// Registry resolves the application constructors known to this package.
var Registry = tl.NewRegistry(
	func() tl.Object { return new(UpdatesTooLong) },
	func() tl.Object { return new(UpdateShort) },
	func() tl.Object { return new(Updates) },
	func() tl.Object { return &Updates{Combined: true} },
	func() tl.Object { return new(UpdateDeleteMessages) },
	func() tl.Object { return new(UpdateDeleteChannelMessages) },
	func() tl.Object { return new(UpdateReadMessagesContents) },
	func() tl.Object { return new(UpdateChannelTooLong) },
	func() tl.Object { return new(UpdatesState) },
	func() tl.Object { return new(UpdatesDifferenceEmpty) },
	func() tl.Object { return new(UpdatesDifference) },
	func() tl.Object { return &UpdatesDifference{Slice: true} },
	func() tl.Object { return new(UpdatesDifferenceTooLong) },
	func() tl.Object { return new(UpdatesChannelDifferenceEmpty) },
	func() tl.Object { return new(UpdatesChannelDifferenceTooLong) },
	func() tl.Object { return new(UpdatesChannelDifference) },
	func() tl.Object { return new(InputChannel) },
	func() tl.Object { return new(ChannelMessagesFilterEmpty) },
)

// IsUpdates returns true iff id is one of the Updates envelope
// constructors a server pushes outside of rpc_result.
func IsUpdates(id uint32) bool {
	switch id {
	case UpdatesTooLongID, UpdateShortID, UpdatesID, UpdatesCombinedID,
		UpdateShortMessageID, UpdateShortChatMessageID, UpdateShortSentMessageID:
		return true
	}
	return false
}

// Constructors of the short message envelopes.  They carry pts but their
// bodies are not modelled here; a registry supplied by the caller decodes
// them.
const (
	UpdateShortMessageID     uint32 = 0x313bc7f8
	UpdateShortChatMessageID uint32 = 0x4d6deea5
	UpdateShortSentMessageID uint32 = 0x9015e101
)
