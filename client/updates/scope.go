// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package updates

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/queue"
	"github.com/katzenpost/mtproto/core/retry"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
	"github.com/katzenpost/mtproto/internal/instrument"
)

type scopeState int

const (
	stateInSync scopeState = iota
	stateGapDetected
	stateCatchingUp
)

func (s scopeState) String() string {
	switch s {
	case stateInSync:
		return "in sync"
	case stateGapDetected:
		return "gap detected"
	case stateCatchingUp:
		return "catching up"
	}
	return "unknown"
}

// ptsEvent is an update that moves the pts of its scope from pts-count
// to pts.
type ptsEvent struct {
	update tl.Object
	users  []tl.Object
	chats  []tl.Object
	pts    int32
	count  int32
}

func (e *ptsEvent) before() int32 {
	return e.pts - e.count
}

// tooLong asks a scope to fetch its difference now.  pts is the base to
// use when the scope has no state yet.
type tooLong struct {
	pts int32
}

// envelope is an Updates object pushed by the server, handled by the
// account wide scope.
type envelope struct {
	obj tl.Object
}

// scope sequences the updates of the account (channelID 0) or of one
// channel.  All of its state is owned by its goroutine.
type scope struct {
	s         *Sequencer
	channelID int64
	log       *logging.Logger
	inbox     *inbox

	state   scopeState
	known   bool
	pts     int32
	pending *queue.PriorityQueue[*ptsEvent]

	gapTimer *time.Timer
	attempt  int
	refetch  bool
	dirty    bool
}

func newScope(s *Sequencer, channelID int64) *scope {
	sc := &scope{
		s:         s,
		channelID: channelID,
		inbox:     newInbox(),
		pending:   queue.New[*ptsEvent](),
	}
	if channelID == 0 {
		sc.log = s.cfg.LogBackend.GetLogger("updates")
	} else {
		sc.log = s.cfg.LogBackend.GetLogger(fmt.Sprintf("updates/channel%d", channelID))
	}
	return sc
}

func (sc *scope) global() bool {
	return sc.channelID == 0
}

func (sc *scope) label() string {
	if sc.global() {
		return "global"
	}
	return "channel"
}

func (sc *scope) worker() {
	defer sc.stopTimer()
	for {
		var gapC <-chan time.Time
		if sc.gapTimer != nil {
			gapC = sc.gapTimer.C
		}
		select {
		case <-sc.s.HaltCh():
			return
		case <-sc.inbox.ch:
			for _, it := range sc.inbox.drain() {
				sc.handle(it)
			}
		case <-gapC:
			sc.gapTimer = nil
			sc.catchUp()
		}
		sc.settle()
		sc.persist()
	}
}

func (sc *scope) handle(it interface{}) {
	switch v := it.(type) {
	case *ptsEvent:
		sc.onEvent(v)
	case tooLong:
		if !sc.known && v.pts > 0 {
			sc.pts, sc.known = v.pts, true
		}
		sc.stopTimer()
		sc.catchUp()
	case envelope:
		sc.s.onEnvelope(v.obj)
	default:
		sc.log.Errorf("BUG: unexpected inbox item: %T", it)
	}
}

func (sc *scope) onEvent(ev *ptsEvent) {
	if !sc.known {
		sc.pts, sc.known = ev.before(), true
		sc.dirty = true
	}
	switch before := ev.before(); {
	case before < sc.pts:
		sc.log.Debugf("Dropping duplicate %s (pts %d, local %d).", tl.TypeName(ev.update), ev.pts, sc.pts)
	case before == sc.pts:
		sc.apply(ev)
		sc.replay()
	default:
		sc.buffer(ev)
	}
}

func (sc *scope) apply(ev *ptsEvent) {
	sc.pts = ev.pts
	sc.dirty = true
	sc.s.deliver(&Event{
		ChannelID: sc.channelID,
		Update:    ev.update,
		Users:     ev.users,
		Chats:     ev.chats,
		Pts:       ev.pts,
	})
}

func (sc *scope) buffer(ev *ptsEvent) {
	if sc.pending.Len() >= sc.s.cfg.BufferSize {
		sc.log.Warningf("Gap buffer overflow at pts %d, fetching the difference.", sc.pts)
		sc.pending.Clear()
		sc.stopTimer()
		sc.catchUp()
		return
	}
	sc.log.Debugf("Holding %s back: pts %d needs %d, local %d.", tl.TypeName(ev.update), ev.pts, ev.before(), sc.pts)
	sc.pending.Enqueue(int64(ev.before()), ev)
}

// replay applies the held back events that are now in sequence.
func (sc *scope) replay() {
	for e := sc.pending.Peek(); e != nil; e = sc.pending.Peek() {
		ev := e.Value
		if ev.before() > sc.pts {
			return
		}
		sc.pending.Dequeue()
		if ev.before() < sc.pts {
			continue
		}
		sc.apply(ev)
	}
}

// gapOpen reports whether events are held back or a failed fetch is
// waiting to be retried.
func (sc *scope) gapOpen() bool {
	if sc.refetch || sc.pending.Len() > 0 {
		return true
	}
	return sc.global() && sc.s.seqPending.Len() > 0
}

// settle moves the state machine after a batch of work.
func (sc *scope) settle() {
	switch {
	case !sc.gapOpen():
		if sc.state != stateInSync {
			sc.log.Debugf("In sync at pts %d.", sc.pts)
		}
		sc.state = stateInSync
		sc.attempt = 0
		sc.stopTimer()
	case sc.state == stateInSync:
		sc.state = stateGapDetected
		instrument.UpdateGap(sc.label())
		sc.log.Infof("Gap detected after pts %d.", sc.pts)
		sc.arm(sc.s.cfg.GapTimeout)
	}
}

func (sc *scope) arm(d time.Duration) {
	sc.stopTimer()
	sc.gapTimer = time.NewTimer(d)
}

func (sc *scope) stopTimer() {
	if sc.gapTimer != nil {
		sc.gapTimer.Stop()
		sc.gapTimer = nil
	}
}

func (sc *scope) catchUp() {
	sc.state = stateCatchingUp
	instrument.DifferenceFetch(sc.label())

	var err error
	if sc.global() {
		err = sc.s.fetchDifference(sc.s.HaltCtx())
	} else {
		err = sc.fetchChannelDifference(sc.s.HaltCtx())
	}
	if err != nil {
		if sc.s.IsHalted() {
			return
		}
		sc.attempt++
		d := retry.Delay(fetchRetryBase, fetchRetryMax, retry.DefaultJitter, sc.attempt)
		sc.log.Warningf("Failed to fetch the difference (attempt %d), retrying in %v: %v", sc.attempt, d, err)
		sc.state = stateGapDetected
		sc.refetch = true
		sc.arm(d)
		return
	}

	sc.refetch = false
	sc.attempt = 0
	sc.state = stateInSync
	sc.replay()
	if sc.global() {
		sc.s.replaySeq()
	}
}

func (sc *scope) fetchChannelDifference(ctx context.Context) error {
	if !sc.known {
		sc.log.Debugf("No base pts, not fetching the difference.")
		sc.pending.Clear()
		return nil
	}
	limit := sc.s.cfg.ChannelDifferenceLimit
	if sc.pts <= 0 {
		sc.pts, limit = 1, 1
	}
	for {
		res, err := sc.s.cfg.Fetcher.Call(ctx, &api.UpdatesGetChannelDifference{
			Force:   true,
			Channel: sc.s.cfg.InputChannel(sc.channelID),
			Pts:     sc.pts,
			Limit:   limit,
		})
		if err != nil {
			return err
		}
		sc.dirty = true
		switch d := res.(type) {
		case *api.UpdatesChannelDifferenceEmpty:
			sc.log.Debugf("Channel difference is empty at pts %d.", d.Pts)
			sc.pts = d.Pts
			return nil
		case *api.UpdatesChannelDifferenceTooLong:
			if dp, ok := d.Dialog.(api.DialogPts); ok {
				if pts, ok := dp.DialogPts(); ok {
					sc.pts = pts
				}
			}
			sc.log.Noticef("Channel difference too long, resetting to pts %d.", sc.pts)
			sc.pending.Clear()
			sc.s.deliver(&Event{Kind: EventReset, ChannelID: sc.channelID, Pts: sc.pts})
			for _, msg := range d.Messages {
				sc.s.deliver(&Event{ChannelID: sc.channelID, Update: msg, Users: d.Users, Chats: d.Chats, FromDifference: true})
			}
			return nil
		case *api.UpdatesChannelDifference:
			sc.log.Debugf("Channel difference: %d messages, %d updates, pts %d, final %v.", len(d.NewMessages), len(d.OtherUpdates), d.Pts, d.Final)
			for _, msg := range d.NewMessages {
				sc.s.deliver(&Event{ChannelID: sc.channelID, Update: msg, Users: d.Users, Chats: d.Chats, FromDifference: true})
			}
			for _, upd := range d.OtherUpdates {
				ev := &Event{ChannelID: sc.channelID, Update: upd, Users: d.Users, Chats: d.Chats, FromDifference: true}
				if u, ok := upd.(api.PtsUpdate); ok {
					ev.Pts = u.GetPts()
				}
				sc.s.deliver(ev)
			}
			sc.pts = d.Pts
			if d.Final {
				return nil
			}
		default:
			return fmt.Errorf("updates: unexpected channel difference: %s", tl.TypeName(res))
		}
	}
}

func (sc *scope) persist() {
	if !sc.dirty {
		return
	}
	var err error
	if sc.global() {
		err = storage.StoreValue(sc.s.cfg.Storage, stateKey, sc.s.snapshot())
	} else {
		err = storage.StoreValue(sc.s.cfg.Storage, channelKey(sc.channelID), sc.pts)
	}
	if err != nil {
		sc.log.Warningf("Failed to persist state: %v", err)
		return
	}
	sc.dirty = false
}
