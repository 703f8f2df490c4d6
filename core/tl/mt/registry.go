// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package mt contains the MTProto service schema: the key exchange
// messages and the service messages exchanged inside encrypted sessions.
package mt

import (
	"github.com/katzenpost/mtproto/core/tl"
)

// Registry resolves every constructor a server may send at the service
// level.
var Registry = tl.NewRegistry(
	func() tl.Object { return new(ResPQ) },
	func() tl.Object { return new(ServerDHParamsOk) },
	func() tl.Object { return new(ServerDHParamsFail) },
	func() tl.Object { return new(ServerDHInnerData) },
	func() tl.Object { return &DHGenResult{ID: DHGenOkID} },
	func() tl.Object { return &DHGenResult{ID: DHGenRetryID} },
	func() tl.Object { return &DHGenResult{ID: DHGenFailID} },
	func() tl.Object { return new(RPCResult) },
	func() tl.Object { return new(RPCError) },
	func() tl.Object { return &RPCAnswer{ID: RPCAnswerUnknownID} },
	func() tl.Object { return &RPCAnswer{ID: RPCAnswerDroppedRunningID} },
	func() tl.Object { return &RPCAnswer{ID: RPCAnswerDroppedID} },
	func() tl.Object { return new(MsgsAck) },
	func() tl.Object { return new(BadMsgNotification) },
	func() tl.Object { return new(BadServerSalt) },
	func() tl.Object { return new(NewSessionCreated) },
	func() tl.Object { return new(Pong) },
	func() tl.Object { return &MsgIDList{ID: MsgsStateReqID} },
	func() tl.Object { return &MsgIDList{ID: MsgResendReqID} },
	func() tl.Object { return new(MsgsStateInfo) },
	func() tl.Object { return new(MsgsAllInfo) },
	func() tl.Object { return &MsgDetailedInfo{ID: MsgDetailedInfoID} },
	func() tl.Object { return &MsgDetailedInfo{ID: MsgNewDetailedInfoID} },
	func() tl.Object { return new(FutureSalts) },
	func() tl.Object { return &DestroySessionRes{ID: DestroySessionOkID} },
	func() tl.Object { return &DestroySessionRes{ID: DestroySessionNoneID} },
	func() tl.Object { return new(MsgContainer) },
	func() tl.Object { return new(GzipPacked) },
)

// IsContentRelated returns false for the outgoing message types that are
// sent with an even seqno.
func IsContentRelated(id uint32) bool {
	switch id {
	case MsgsAckID, MsgContainerID:
		return false
	}
	return true
}

// NeedsAck returns true iff an incoming message of type id must be
// acknowledged.
func NeedsAck(id uint32) bool {
	switch id {
	case MsgsAckID, BadMsgNotificationID, BadServerSaltID, MsgsAllInfoID,
		MsgsStateInfoID, MsgDetailedInfoID, MsgNewDetailedInfoID, MsgContainerID:
		return false
	}
	return true
}
