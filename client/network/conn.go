// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/core/authkey"
	"github.com/katzenpost/mtproto/core/retry"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/transport"
	"github.com/katzenpost/mtproto/core/wire"
	"github.com/katzenpost/mtproto/core/worker"
	"github.com/katzenpost/mtproto/internal/instrument"
)

// recentIncoming is the number of incoming msg_ids remembered for
// msgs_state_req and msg_detailed_info.
const recentIncoming = 1000

// connection is the physical connection of one (data center, Kind) pair
// together with its session.  Calls survive reconnects: everything after
// the channels below is owned by the connect worker.
type connection struct {
	worker.Worker

	m    *Manager
	dc   *dcState
	kind Kind
	log  *logging.Logger

	session *wire.Session

	sendCh   chan *request
	cancelCh chan *request
	goneCh   chan struct{}

	queue      []*request
	pending    *pendingSet
	acks       []int64
	stateReqs  []int64
	resendReqs []int64
	drops      []int64
	replies    []tl.Object
	recent     *recentIDs

	pingDue   bool
	pingMsgID int64

	bound   bool
	bindErr error

	sawSession   bool
	lastUniqueID int64
	futureSalts  []mt.FutureSalt

	connected         bool
	integrityFailures int
	floodFailures     int
}

func newConnection(m *Manager, dc *dcState, kind Kind) *connection {
	c := &connection{
		m:        m,
		dc:       dc,
		kind:     kind,
		log:      m.cfg.LogBackend.GetLogger(fmt.Sprintf("network/dc%d/%v", dc.id, kind)),
		sendCh:   make(chan *request),
		cancelCh: make(chan *request),
		goneCh:   make(chan struct{}),
		pending:  newPendingSet(),
		recent:   newRecentIDs(recentIncoming),
		bound:    true,
	}
	c.session = wire.NewSession(&wire.SessionConfig{
		Rand:               m.cfg.Rand,
		Now:                m.cfg.Now,
		ExtraPaddingBlocks: m.cfg.ExtraPaddingBlocks,
	})
	return c
}

func (c *connection) start() {
	c.Go(c.connectWorker)
}

// call sends a request over the connection and waits for its result.
func (c *connection) call(ctx context.Context, cc *CallContext) (tl.Object, error) {
	payload, err := tl.Encode(cc.Request)
	if err != nil {
		return nil, err
	}
	if len(payload) > wire.MaxPayloadSize {
		return nil, ErrPayloadTooBig
	}
	payload = maybeGzip(payload)

	reg := cc.Registry
	if reg == nil {
		reg = c.m.cfg.Registry
	}
	r := newRequest(cc.Method, payload, reg)
	r.alone = cc.NoCoalesce || len(payload) > maxCoalescedSize
	return c.submit(ctx, r)
}

func (c *connection) submit(ctx context.Context, r *request) (tl.Object, error) {
	select {
	case c.sendCh <- r:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.HaltCh():
		return nil, ErrShutdown
	case <-c.goneCh:
		return nil, ErrReconnectDisabled
	}

	select {
	case res := <-r.respCh:
		return res.obj, res.err
	case <-ctx.Done():
		c.Go(func() {
			select {
			case c.cancelCh <- r:
			case <-c.HaltCh():
			case <-c.goneCh:
			}
		})
		return nil, ctx.Err()
	case <-c.HaltCh():
		return nil, ErrShutdown
	case <-c.goneCh:
		return nil, ErrReconnectDisabled
	}
}

func (c *connection) connectWorker() {
	defer c.log.Debugf("Terminating connect worker.")

	params := retry.ReconnectParams{DC: c.dc.id, Kind: c.kind.String()}
	var (
		failures int
		wait     time.Duration
	)
	for {
		c.connected = false
		err := c.doConnect()
		if c.IsHalted() || errors.Is(err, ErrShutdown) {
			c.failAll(ErrShutdown)
			return
		}
		if c.connected {
			failures, wait = 0, 0
		}
		failures++
		instrument.Reconnect(c.dc.id, c.kind.String())

		var tErr *transport.Error
		if errors.As(err, &tErr) && tErr.Flood() {
			wait = retry.FloodDelay(c.floodFailures)
			c.floodFailures++
		} else {
			d, ok := c.m.cfg.ReconnectStrategy(params, err, failures, wait)
			if !ok {
				c.log.Warningf("Giving up after %d failures: %v", failures, err)
				close(c.goneCh)
				c.failAll(ErrReconnectDisabled)
				c.m.removeConn(c)
				return
			}
			wait = d
		}
		if retry.IsTransientError(err) {
			c.log.Noticef("Connection lost (%v), reconnecting in %v.", err, wait)
		} else {
			c.log.Warningf("Connection failed (%v), reconnecting in %v.", err, wait)
		}

		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-c.HaltCh():
				t.Stop()
				c.failAll(ErrShutdown)
				return
			}
		}
	}
}

func (c *connection) doConnect() error {
	addr := c.m.address(c.dc.id, c.kind.media())
	if addr == "" {
		return newConnectError("no address for DC %d", c.dc.id)
	}

	dialCtx, cancelFn := context.WithTimeout(c.HaltCtx(), c.m.cfg.DialTimeout)
	defer cancelFn()

	c.log.Debugf("Dialing: %v", addr)
	conn, err := c.m.cfg.Dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if c.IsHalted() {
			return ErrShutdown
		}
		return &ConnectError{Err: err}
	}
	tc, err := transport.NewConn(dialCtx, conn, c.m.cfg.Codec(c.dc.id, c.kind.media()))
	if err != nil {
		conn.Close()
		return &ConnectError{Err: err}
	}
	defer tc.Close()
	return c.onNetConn(tc)
}

func (c *connection) onNetConn(tc *transport.Conn) error {
	ctx := c.HaltCtx()

	perm, res, err := c.dc.permanentKey(ctx, tc, c.kind.media())
	if err != nil {
		return c.keyError(err)
	}
	key := perm
	if c.m.cfg.UsePFS {
		temp, tres, err := c.dc.tempKey(ctx, tc, c.kind)
		if err != nil {
			return c.keyError(err)
		}
		key = temp
		if tres != nil {
			res = tres
		}
	}

	if !key.Equal(c.session.AuthKey()) {
		c.log.Debugf("Starting a session with key %x.", key.ID())
		c.session.SetAuthKey(key)
		c.resetSession()
		if c.m.cfg.UsePFS {
			c.bound = false
			c.bindErr = nil
			c.queue = append([]*request{c.bindRequest(perm, key)}, c.queue...)
		}
	} else {
		// The session survives the reconnect, but the server may number
		// its messages afresh.
		c.session.ResetIncoming()

		// Ask the server about the calls left unanswered by the old
		// connection.
		for id, o := range c.pending.byID {
			if o.kind == outRPC {
				c.stateReqs = append(c.stateReqs, id)
			}
		}
		slices.Sort(c.stateReqs)
		if o := c.pending.get(c.pingMsgID); o != nil {
			c.pending.remove(o)
		}
		c.pingMsgID = 0
	}
	if res != nil {
		c.session.SetServerSalt(res.ServerSalt)
		c.session.SetTimeOffset(res.TimeOffset)
	}
	return c.onWireConn(tc)
}

func (c *connection) keyError(err error) error {
	if c.IsHalted() {
		return ErrShutdown
	}
	var herr *authkey.HandshakeError
	if errors.As(err, &herr) && herr.Transport {
		var tErr *transport.Error
		if errors.As(herr.Err, &tErr) {
			return tErr
		}
	}
	return &ConnectError{Err: err}
}

func (c *connection) bindRequest(perm, temp *wire.AuthKey) *request {
	r := newRequest("auth.bindTempAuthKey", nil, c.m.cfg.Registry)
	r.alone = true
	r.build = func(msgID int64) ([]byte, error) {
		req, err := authkey.BindRequest(c.m.cfg.Rand, perm, temp, c.session.ID(), msgID)
		if err != nil {
			return nil, err
		}
		return tl.Encode(req)
	}
	r.done = func(obj tl.Object, err error) {
		if errors.Is(err, ErrShutdown) || errors.Is(err, ErrReconnectDisabled) {
			return
		}
		if err == nil {
			if raw, ok := obj.(*tl.Raw); !ok || raw.ID != tl.BoolTrueID {
				err = fmt.Errorf("network: auth.bindTempAuthKey returned %s", tl.TypeName(obj))
			}
		}
		if err != nil {
			c.log.Errorf("Failed to bind temporary key: %v", err)
			c.bindErr = err
			c.dc.dropKey(temp, c.kind)
			c.session.SetAuthKey(nil)
			return
		}
		c.log.Debugf("Temporary key %x bound.", temp.ID())
		c.bound = true
	}
	return r
}

func (c *connection) onWireConn(tc *transport.Conn) error {
	c.log.Debugf("Connected to %v.", tc.RemoteAddr())

	readCtx, cancelRead := context.WithCancel(c.HaltCtx())
	defer cancelRead()

	// Start the peer reader.
	pktCh := make(chan interface{})
	c.Go(func() {
		for {
			var v interface{}
			pkt, err := tc.Recv(readCtx)
			if err != nil {
				v = err
			} else {
				v = pkt
			}
			select {
			case pktCh <- v:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	})

	pingTicker := time.NewTicker(c.m.cfg.PingInterval)
	defer pingTicker.Stop()
	ackTicker := time.NewTicker(c.m.cfg.AckInterval)
	defer ackTicker.Stop()
	var (
		flushTimer *time.Timer
		flushC     <-chan time.Time
	)
	defer func() {
		if flushTimer != nil {
			flushTimer.Stop()
		}
	}()

	if err := c.flush(tc, false); err != nil {
		return err
	}
	for {
		ackNow := false
		select {
		case <-c.HaltCh():
			return ErrShutdown
		case r := <-c.sendCh:
			c.queue = append(c.queue, r)
			instrument.RPCCall(r.method)
			if !r.alone && c.m.cfg.ContainerDelay > 0 {
				if flushC == nil {
					flushTimer = time.NewTimer(c.m.cfg.ContainerDelay)
					flushC = flushTimer.C
				}
				continue
			}
		case r := <-c.cancelCh:
			c.cancel(r)
		case <-flushC:
			flushC = nil
		case <-ackTicker.C:
			ackNow = true
		case <-pingTicker.C:
			if c.pingMsgID != 0 {
				return newProtocolError("no pong within %v", c.m.cfg.PingInterval)
			}
			c.pingDue = true
		case v := <-pktCh:
			switch v := v.(type) {
			case error:
				return c.onRecvError(v)
			case []byte:
				if err := c.onPacket(v); err != nil {
					return err
				}
			}
			if c.bindErr != nil {
				return newProtocolError("failed to bind temporary key: %v", c.bindErr)
			}
		}
		if err := c.flush(tc, ackNow); err != nil {
			return err
		}
	}
}

func (c *connection) onRecvError(err error) error {
	var tErr *transport.Error
	if !errors.As(err, &tErr) {
		return err
	}
	instrument.TransportError(tErr.Code)
	switch {
	case tErr.AuthKeyUnknown():
		if k := c.session.AuthKey(); k != nil {
			c.log.Warningf("Server does not know key %x.", k.ID())
			c.dc.dropKey(k, c.kind)
			c.session.SetAuthKey(nil)
		}
	case tErr.Flood():
		c.log.Warningf("Server is flooded, backing off.")
	}
	return tErr
}

func (c *connection) onPacket(pkt []byte) error {
	msg, err := c.session.Unwrap(pkt)
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrDuplicate):
			c.log.Debugf("Dropping duplicate message: %v", err)
			return nil
		case errors.Is(err, wire.ErrIntegrity):
			instrument.IntegrityFailure()
			c.integrityFailures++
			c.log.Warningf("Dropping message: %v (%d in a row)", err, c.integrityFailures)
			if c.integrityFailures >= wire.IntegrityFailureThreshold {
				return newProtocolError("%d consecutive integrity failures", c.integrityFailures)
			}
			return nil
		}
		return newProtocolError("failed to decrypt message: %v", err)
	}
	c.integrityFailures = 0
	c.floodFailures = 0
	c.connected = true
	return c.handleMessage(msg.MsgID, msg.SeqNo, msg.Body)
}

func (c *connection) cancel(r *request) {
	if r.finished {
		return
	}
	r.finished = true
	if r.msgID == 0 {
		for i, q := range c.queue {
			if q == r {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
		return
	}
	if o := c.pending.get(r.msgID); o != nil {
		c.pending.remove(o)
	}
	c.log.Debugf("Dropping the answer to %s (0x%x).", r.method, r.msgID)
	c.drops = append(c.drops, r.msgID)
}

// resetSession requeues the calls of a session that was replaced.
// Anything else it had in flight is meaningless to the new session.
func (c *connection) resetSession() {
	ids := make([]int64, 0, c.pending.len())
	for id := range c.pending.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var requeue []*request
	for _, id := range ids {
		o := c.pending.byID[id]
		if o.kind == outRPC && !o.req.finished && o.req.build == nil {
			o.req.msgID = 0
			o.req.acked = false
			requeue = append(requeue, o.req)
		}
	}
	// A bind request is only valid for the key it was built for.
	for _, r := range c.queue {
		if r.build == nil {
			requeue = append(requeue, r)
		}
	}
	c.queue = requeue
	c.pending = newPendingSet()
	c.acks = nil
	c.stateReqs = nil
	c.resendReqs = nil
	c.drops = nil
	c.replies = nil
	c.pingMsgID = 0
	c.recent = newRecentIDs(recentIncoming)
}

func (c *connection) failAll(err error) {
	for _, r := range c.queue {
		r.complete(nil, err)
	}
	c.queue = nil
	for _, o := range c.pending.byID {
		if o.kind == outRPC {
			o.req.complete(nil, err)
		}
	}
	c.pending = newPendingSet()
}
