// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"errors"

	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/internal/instrument"
)

// Message status bits of msgs_state_info and msgs_all_info.
const (
	stateUnknown     = 1
	stateNotReceived = 2
	stateReceivedBad = 3
	stateReceived    = 4
)

func (c *connection) handleMessage(msgID int64, seqNo int32, body []byte) error {
	return c.handleInner(msgID, seqNo, body, false)
}

// handleInner processes one message.  Containers are only valid at the top
// level; one nested inside another is dropped with its contents.
func (c *connection) handleInner(msgID int64, seqNo int32, body []byte, inContainer bool) error {
	c.recent.add(msgID)

	body, err := mt.Unpack(body)
	if err != nil {
		c.log.Warningf("Dropping message 0x%x: %v", msgID, err)
		return nil
	}
	id, err := tl.NewDecoder(nil, body).PeekID()
	if err != nil {
		c.log.Warningf("Dropping empty message 0x%x.", msgID)
		return nil
	}
	if id == mt.MsgContainerID && inContainer {
		c.log.Warningf("Dropping container 0x%x nested in a container.", msgID)
		return nil
	}
	if mt.NeedsAck(id) {
		c.acks = append(c.acks, msgID)
	}

	if !mt.Registry.Has(id) {
		if api.IsUpdates(id) {
			c.onUpdates(decodeObject(c.m.cfg.Registry, body))
			return nil
		}
		c.log.Warningf("Ignoring message 0x%x of unknown type 0x%08x.", msgID, id)
		return nil
	}
	obj, err := tl.Decode(mt.Registry, body)
	if err != nil {
		c.log.Warningf("Dropping malformed message 0x%x: %v", msgID, err)
		return nil
	}
	c.log.Debugf("Received %s 0x%x (seq_no %d).", tl.TypeName(obj), msgID, seqNo)

	switch v := obj.(type) {
	case *mt.MsgContainer:
		for _, m := range v.Messages {
			if m.MsgID%2 == 0 || c.recent.has(m.MsgID) {
				c.log.Debugf("Ignoring message 0x%x inside container.", m.MsgID)
				continue
			}
			if err := c.handleInner(m.MsgID, m.SeqNo, m.Body, true); err != nil {
				return err
			}
		}
	case *mt.RPCResult:
		c.onRPCResult(v)
	case *mt.MsgsAck:
		c.onAck(v.MsgIDs)
	case *mt.BadServerSalt:
		c.log.Debugf("Server salt updated for 0x%x.", v.BadMsgID)
		c.session.SetServerSalt(v.NewServerSalt)
		c.resend(v.BadMsgID)
	case *mt.BadMsgNotification:
		c.onBadMsg(msgID, v)
	case *mt.NewSessionCreated:
		c.onNewSession(v)
	case *mt.Pong:
		c.onPong(v)
	case *mt.MsgDetailedInfo:
		c.onDetailedInfo(v)
	case *mt.MsgsStateInfo:
		c.onStateInfo(v)
	case *mt.MsgsAllInfo:
		for i, id := range v.MsgIDs {
			if i < len(v.Info) {
				c.applyState(id, v.Info[i])
			}
		}
	case *mt.MsgIDList:
		switch v.ID {
		case mt.MsgsStateReqID:
			c.onStateReq(msgID, v.MsgIDs)
		case mt.MsgResendReqID:
			c.log.Debugf("Server asked to resend %d message(s).", len(v.MsgIDs))
			for _, id := range v.MsgIDs {
				c.resend(id)
			}
		}
	case *mt.FutureSalts:
		c.log.Debugf("Received %d future salts.", len(v.Salts))
		c.futureSalts = v.Salts
		if o := c.pending.get(v.ReqMsgID); o != nil {
			c.pending.remove(o)
			if o.kind == outRPC {
				o.req.complete(v, nil)
			}
		}
	case *mt.DestroySessionRes:
		c.log.Debugf("Session destroyed: %s.", tl.TypeName(v))
	default:
		c.log.Warningf("Ignoring unexpected %s.", tl.TypeName(obj))
	}
	return nil
}

// decodeObject decodes b with reg, keeping constructors unknown to reg as
// tl.Raw.
func decodeObject(reg *tl.Registry, b []byte) tl.Object {
	obj, err := tl.Decode(reg, b)
	if err == nil {
		return obj
	}
	id, _ := tl.NewDecoder(nil, b).PeekID()
	return &tl.Raw{ID: id, Body: append([]byte(nil), b[4:]...)}
}

func decodeResult(r *request, b []byte) (tl.Object, error) {
	b, err := mt.Unpack(b)
	if err != nil {
		return nil, newProtocolError("%s: %v", r.method, err)
	}
	d := tl.NewDecoder(nil, b)
	id, err := d.PeekID()
	if err != nil {
		return nil, newProtocolError("%s: empty result", r.method)
	}
	if id == mt.RPCErrorID {
		var e mt.RPCError
		if err := tl.DecodeInto(nil, b, &e); err != nil {
			return nil, newProtocolError("%s: %v", r.method, err)
		}
		return nil, &RPCError{Code: e.ErrorCode, Message: e.ErrorMessage, Method: r.method}
	}
	obj, err := tl.Decode(r.registry, b)
	var uerr *tl.UnknownConstructorError
	switch {
	case err == nil:
		return obj, nil
	case errors.As(err, &uerr) && uerr.ID == id:
		return &tl.Raw{ID: id, Body: append([]byte(nil), b[4:]...)}, nil
	}
	return nil, newProtocolError("%s: %v", r.method, err)
}

func (c *connection) onRPCResult(res *mt.RPCResult) {
	o := c.pending.get(res.ReqMsgID)
	if o == nil {
		c.log.Debugf("Ignoring result for unknown message 0x%x.", res.ReqMsgID)
		return
	}
	c.pending.remove(o)
	c.collectContainer(o.containerID)

	switch o.kind {
	case outRPC:
	case outDrop:
		c.log.Debugf("Answer to 0x%x dropped.", o.ids[0])
		return
	default:
		c.log.Warningf("Ignoring result for %v 0x%x.", o.kind, o.msgID)
		return
	}

	obj, err := decodeResult(o.req, res.Result)
	var rerr *RPCError
	if errors.As(err, &rerr) {
		instrument.RPCError(rerr.Kind())
		c.log.Debugf("%s failed: %v", o.req.method, rerr)
	}
	o.req.complete(obj, err)
}

// collectContainer forgets a container once none of its messages is
// pending any more.
func (c *connection) collectContainer(id int64) {
	if id == 0 {
		return
	}
	cont := c.pending.get(id)
	if cont == nil {
		return
	}
	for _, child := range cont.children {
		if c.pending.get(child) != nil {
			return
		}
	}
	c.pending.remove(cont)
}

func (c *connection) onAck(ids []int64) {
	for _, id := range ids {
		o := c.pending.get(id)
		if o == nil {
			continue
		}
		switch o.kind {
		case outRPC:
			o.req.acked = true
		case outContainer:
			c.pending.remove(o)
			for _, child := range o.children {
				if co := c.pending.get(child); co != nil {
					switch co.kind {
					case outRPC:
						co.req.acked = true
					case outResend:
						c.pending.remove(co)
					}
				}
			}
		case outResend:
			c.pending.remove(o)
		}
	}
}

// resend puts the contents of a message the server did not process back
// into the send queues.  They go out with fresh msg_ids.
func (c *connection) resend(msgID int64) {
	o := c.pending.get(msgID)
	if o == nil {
		return
	}
	c.pending.remove(o)
	c.collectContainer(o.containerID)

	switch o.kind {
	case outRPC:
		if o.req.finished {
			return
		}
		o.req.msgID = 0
		o.req.acked = false
		c.queue = append(c.queue, o.req)
	case outContainer:
		for _, child := range o.children {
			c.resend(child)
		}
	case outPing:
		if c.pingMsgID == msgID {
			c.pingMsgID = 0
			c.pingDue = true
		}
	case outStateReq:
		c.stateReqs = append(c.stateReqs, o.ids...)
	case outResend:
		c.resendReqs = append(c.resendReqs, o.ids...)
	case outDrop:
		c.drops = append(c.drops, o.ids...)
	}
}

// failMessage completes the calls carried by a message with err.
func (c *connection) failMessage(msgID int64, err error) {
	o := c.pending.get(msgID)
	if o == nil {
		return
	}
	c.pending.remove(o)
	c.collectContainer(o.containerID)

	switch o.kind {
	case outRPC:
		o.req.complete(nil, err)
	case outContainer:
		for _, child := range o.children {
			c.failMessage(child, err)
		}
	case outPing:
		if c.pingMsgID == msgID {
			c.pingMsgID = 0
		}
	}
}

func (c *connection) onBadMsg(serverMsgID int64, v *mt.BadMsgNotification) {
	c.log.Debugf("bad_msg_notification %d for 0x%x.", v.ErrorCode, v.BadMsgID)
	switch v.ErrorCode {
	case 16, 17:
		// msg_id too low or too high: our clock is off.
		c.session.SyncTime(serverMsgID)
		c.resend(v.BadMsgID)
	case 32, 33:
		// The seqno can only start over with the session.
		c.log.Noticef("seq_no out of sync (%d), starting a new session.", v.ErrorCode)
		c.session.Reset()
		c.resetSession()
	case 20, 48:
		c.resend(v.BadMsgID)
	default:
		c.failMessage(v.BadMsgID, newProtocolError("%w: code %d", errBadMsg, v.ErrorCode))
	}
}

func (c *connection) onNewSession(v *mt.NewSessionCreated) {
	if c.sawSession && v.UniqueID == c.lastUniqueID {
		return
	}
	first := !c.sawSession
	c.sawSession = true
	c.lastUniqueID = v.UniqueID
	c.log.Debugf("New session created, first msg_id 0x%x.", v.FirstMsgID)

	c.session.SetServerSalt(v.ServerSalt)
	for _, o := range c.pending.before(v.FirstMsgID) {
		c.resend(o.msgID)
	}
	if !first && c.kind == KindMain {
		c.onUpdates(&api.UpdatesTooLong{})
	}
}

func (c *connection) onPong(v *mt.Pong) {
	o := c.pending.get(v.MsgID)
	if o == nil {
		return
	}
	c.pending.remove(o)
	c.collectContainer(o.containerID)
	switch o.kind {
	case outPing:
		if v.PingID != o.pingID {
			c.log.Warningf("Pong for 0x%x carries the wrong ping_id.", v.MsgID)
		}
		if c.pingMsgID == v.MsgID {
			c.pingMsgID = 0
		}
		c.log.Debugf("Pong after %v.", c.m.cfg.Now().Sub(o.sentAt))
	case outRPC:
		o.req.complete(v, nil)
	}
}

func (c *connection) onDetailedInfo(v *mt.MsgDetailedInfo) {
	if v.ID == mt.MsgDetailedInfoID {
		c.onAck([]int64{v.MsgID})
	}
	if c.recent.has(v.AnswerMsgID) {
		c.acks = append(c.acks, v.AnswerMsgID)
		return
	}
	c.resendReqs = append(c.resendReqs, v.AnswerMsgID)
}

func (c *connection) onStateInfo(v *mt.MsgsStateInfo) {
	o := c.pending.get(v.ReqMsgID)
	if o == nil || o.kind != outStateReq {
		return
	}
	c.pending.remove(o)
	c.collectContainer(o.containerID)
	for i, id := range o.ids {
		if i >= len(v.Info) {
			break
		}
		c.applyState(id, v.Info[i])
	}
}

func (c *connection) applyState(msgID int64, info byte) {
	switch info & 7 {
	case stateUnknown, stateNotReceived, stateReceivedBad:
		c.resend(msgID)
	case stateReceived:
		c.onAck([]int64{msgID})
	}
}

func (c *connection) onStateReq(reqMsgID int64, ids []int64) {
	info := make([]byte, len(ids))
	for i, id := range ids {
		if c.recent.has(id) {
			info[i] = stateReceived
		} else {
			info[i] = stateUnknown
		}
	}
	c.replies = append(c.replies, &mt.MsgsStateInfo{ReqMsgID: reqMsgID, Info: info})
}

func (c *connection) onUpdates(obj tl.Object) {
	if c.m.cfg.UpdateHandler == nil {
		return
	}
	c.m.cfg.UpdateHandler.HandleUpdates(obj)
}

// rotateSalt switches to the next future salt once it becomes valid.
func (c *connection) rotateSalt() {
	now := int32(c.m.cfg.Now().Unix() + c.session.TimeOffset())
	for len(c.futureSalts) > 0 && c.futureSalts[0].ValidUntil <= now {
		c.futureSalts = c.futureSalts[1:]
	}
	if len(c.futureSalts) == 0 {
		return
	}
	if s := c.futureSalts[0]; s.ValidSince <= now && s.Salt != c.session.ServerSalt() {
		c.session.SetServerSalt(s.Salt)
	}
}
