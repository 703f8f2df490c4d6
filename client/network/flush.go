// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"encoding/binary"

	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/transport"
	"github.com/katzenpost/mtproto/internal/instrument"
)

const (
	// gzipThreshold is the smallest payload worth compressing.
	gzipThreshold = 128
	// gzipSampleThreshold is the payload size above which the gain is
	// estimated on a sample before compressing everything.
	gzipSampleThreshold = 16384
	gzipSampleSize      = 1024
	gzipMaxRatio        = 0.9

	// messageOverhead is msg_id, seqno and length inside a container.
	messageOverhead = 16

	// maxCoalescedSize is the largest payload put into a container.
	maxCoalescedSize = mt.MaxContainerSize - 8 - messageOverhead - 1
)

func gzipRatio(b []byte) (float64, []byte) {
	packed, err := mt.Gzip(b)
	if err != nil {
		return 1, nil
	}
	return float64(len(packed)) / float64(len(b)), packed
}

// maybeGzip wraps payload into gzip_packed if that makes it noticeably
// smaller.
func maybeGzip(payload []byte) []byte {
	if len(payload) <= gzipThreshold {
		return payload
	}
	if len(payload) > gzipSampleThreshold {
		mid := len(payload)/2 - gzipSampleSize/2
		if ratio, _ := gzipRatio(payload[mid : mid+gzipSampleSize]); ratio >= gzipMaxRatio {
			return payload
		}
	}
	ratio, packed := gzipRatio(payload)
	if ratio >= gzipMaxRatio || len(packed) > len(payload) {
		return payload
	}
	return packed
}

// batch collects the messages of one envelope.
type batch struct {
	msgs    []mt.Message
	entries []*outgoing
	size    int
}

func (b *batch) fits(n int) bool {
	if len(b.msgs) == 0 {
		return true
	}
	return len(b.msgs)+1 < mt.MaxContainerMessages && 8+b.size+messageOverhead+n < mt.MaxContainerSize
}

func (c *connection) addMessage(b *batch, body []byte, contentRelated bool, o *outgoing) int64 {
	msgID := c.session.NextMsgID()
	return c.addMessageWithID(b, msgID, body, contentRelated, o)
}

func (c *connection) addMessageWithID(b *batch, msgID int64, body []byte, contentRelated bool, o *outgoing) int64 {
	seqNo := c.session.NextSeqNo(contentRelated)
	b.msgs = append(b.msgs, mt.Message{MsgID: msgID, SeqNo: seqNo, Body: body})
	b.size += messageOverhead + len(body)
	if o != nil {
		o.msgID = msgID
		o.sentAt = c.m.cfg.Now()
		b.entries = append(b.entries, o)
	}
	return msgID
}

func encodeService(o tl.Object) []byte {
	b, err := tl.Encode(o)
	if err != nil {
		// Service messages are made of integers and vectors.
		panic("network: failed to encode service message: " + err.Error())
	}
	return b
}

func (c *connection) randomID() int64 {
	var b [8]byte
	if _, err := c.m.cfg.Rand.Read(b[:]); err != nil {
		panic("network: failed to read entropy: " + err.Error())
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// hasWork reports whether anything besides acks is waiting to be sent.
func (c *connection) hasWork() bool {
	if c.pingDue || len(c.stateReqs) > 0 || len(c.resendReqs) > 0 || len(c.drops) > 0 || len(c.replies) > 0 {
		return true
	}
	for _, r := range c.queue {
		if c.bound || r.build != nil {
			return true
		}
	}
	return false
}

// flush sends everything that is due.  Acks only go out on their own when
// ackNow is set or enough of them piled up.
func (c *connection) flush(tc *transport.Conn, ackNow bool) error {
	if !c.hasWork() && !(len(c.acks) > 0 && (ackNow || len(c.acks) >= ackFlushThreshold)) {
		return nil
	}
	c.rotateSalt()

	// Requests too large for a container, and the key binding.
	queue := c.queue[:0]
	var alone []*request
	for _, r := range c.queue {
		switch {
		case r.build != nil:
			alone = append(alone, r)
		case !c.bound:
			queue = append(queue, r)
		case r.alone:
			alone = append(alone, r)
		default:
			queue = append(queue, r)
		}
	}
	c.queue = queue
	for _, r := range alone {
		if err := c.sendAlone(tc, r); err != nil {
			return err
		}
	}

	b := new(batch)
	if n := len(c.acks); n > 0 {
		if n > maxAcksPerMessage {
			n = maxAcksPerMessage
		}
		c.addMessage(b, encodeService(&mt.MsgsAck{MsgIDs: c.acks[:n]}), false, nil)
		c.acks = c.acks[n:]
	}
	if c.pingDue {
		c.pingDue = false
		ping := &mt.PingDelayDisconnect{
			PingID:          c.randomID(),
			DisconnectDelay: int32((c.m.cfg.PingInterval + c.m.cfg.PingInterval/4).Seconds()),
		}
		o := &outgoing{kind: outPing, pingID: ping.PingID}
		c.pingMsgID = c.addMessage(b, encodeService(ping), true, o)
	}
	if len(c.stateReqs) > 0 {
		o := &outgoing{kind: outStateReq, ids: c.stateReqs}
		c.addMessage(b, encodeService(&mt.MsgIDList{ID: mt.MsgsStateReqID, MsgIDs: c.stateReqs}), true, o)
		c.stateReqs = nil
	}
	if len(c.resendReqs) > 0 {
		o := &outgoing{kind: outResend, ids: c.resendReqs}
		c.addMessage(b, encodeService(&mt.MsgIDList{ID: mt.MsgResendReqID, MsgIDs: c.resendReqs}), true, o)
		c.resendReqs = nil
	}
	for _, id := range c.drops {
		o := &outgoing{kind: outDrop, ids: []int64{id}}
		c.addMessage(b, encodeService(&mt.RPCDropAnswer{ReqMsgID: id}), true, o)
	}
	c.drops = nil
	for _, reply := range c.replies {
		c.addMessage(b, encodeService(reply), true, nil)
	}
	c.replies = nil

	for c.bound && len(c.queue) > 0 {
		n := 0
		for _, r := range c.queue {
			if !b.fits(len(r.payload)) {
				break
			}
			r.msgID = c.addMessage(b, r.payload, true, &outgoing{kind: outRPC, req: r})
			n++
		}
		c.queue = c.queue[n:]
		if err := c.sendBatch(tc, b); err != nil {
			return err
		}
		b = new(batch)
	}
	return c.sendBatch(tc, b)
}

func (c *connection) sendAlone(tc *transport.Conn, r *request) error {
	msgID := c.session.NextMsgID()
	payload := r.payload
	if r.build != nil {
		var err error
		if payload, err = r.build(msgID); err != nil {
			r.complete(nil, err)
			return nil
		}
	}
	b := new(batch)
	r.msgID = c.addMessageWithID(b, msgID, payload, true, &outgoing{kind: outRPC, req: r})
	return c.sendBatch(tc, b)
}

// sendBatch encrypts and sends the messages of b, in a container if there
// is more than one.
func (c *connection) sendBatch(tc *transport.Conn, b *batch) error {
	var (
		msgID int64
		seqNo int32
		body  []byte
	)
	switch len(b.msgs) {
	case 0:
		return nil
	case 1:
		msgID, seqNo, body = b.msgs[0].MsgID, b.msgs[0].SeqNo, b.msgs[0].Body
	default:
		msgID = c.session.NextMsgID()
		seqNo = c.session.NextSeqNo(false)
		var err error
		if body, err = tl.Encode(&mt.MsgContainer{Messages: b.msgs}); err != nil {
			return err
		}
		children := make([]int64, 0, len(b.entries))
		for _, o := range b.entries {
			o.containerID = msgID
			children = append(children, o.msgID)
		}
		c.pending.add(&outgoing{msgID: msgID, kind: outContainer, children: children, sentAt: c.m.cfg.Now()})
		instrument.ContainerSize(len(b.msgs))
	}
	for _, o := range b.entries {
		c.pending.add(o)
	}

	env, err := c.session.Encrypt(msgID, seqNo, body)
	if err != nil {
		return err
	}
	c.log.Debugf("Sending %d message(s) as 0x%x.", len(b.msgs), msgID)
	return tc.Send(c.HaltCtx(), env)
}
