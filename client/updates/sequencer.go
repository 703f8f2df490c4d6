// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package updates turns the updates pushed by the server into a gap free
// stream, in pts order, per scope.
//
// The account wide scope tracks pts, qts, date and seq, every channel
// tracks its own pts.  An update that does not follow the local pts is
// held back for a short while; if the gap does not close by itself the
// difference is fetched and the held back updates are replayed on top of
// it.
package updates

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/queue"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
	"github.com/katzenpost/mtproto/core/worker"
)

// QtsUpdate is an update that advances the qts of the account.
type QtsUpdate interface {
	tl.Object
	GetQts() int32
}

// Sequencer orders updates.  It implements network.UpdateHandler.
type Sequencer struct {
	worker.Worker

	cfg    Config
	global *scope

	// Owned by the global scope goroutine.
	qts        int32
	date       int32
	seq        int32
	seqPending *queue.PriorityQueue[*api.Updates]

	sync.Mutex
	channels map[int64]*scope
}

// New returns a Sequencer.  Updates handed over before Start are queued.
func New(cfg *Config) (*Sequencer, error) {
	s := &Sequencer{
		cfg:        *cfg,
		seqPending: queue.New[*api.Updates](),
		channels:   make(map[int64]*scope),
	}
	s.cfg.fixup()
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}
	s.global = newScope(s, 0)
	return s, nil
}

// Start loads the stored state, or fetches it from the server when there
// is none, and starts processing.
func (s *Sequencer) Start(ctx context.Context) error {
	st, err := LoadState(s.cfg.Storage)
	switch {
	case err == nil:
		s.setState(st)
		s.global.log.Debugf("Loaded state: pts %d, qts %d, seq %d.", st.Pts, st.Qts, st.Seq)
		if s.cfg.CatchUp {
			s.global.inbox.push(tooLong{})
		}
	case errors.Is(err, storage.ErrNotFound):
		st, err := s.getState(ctx)
		if err != nil {
			return err
		}
		s.setState(st)
		s.global.dirty = true
		s.global.persist()
	default:
		return err
	}
	s.Go(s.global.worker)
	return nil
}

// HandleUpdates queues an Updates object pushed by the server.  It never
// blocks.
func (s *Sequencer) HandleUpdates(obj tl.Object) {
	s.global.inbox.push(envelope{obj: obj})
}

// Close stops processing.  The state applied so far is stored.
func (s *Sequencer) Close() {
	s.Halt()
}

func (s *Sequencer) getState(ctx context.Context) (State, error) {
	res, err := s.cfg.Fetcher.Call(ctx, &api.UpdatesGetState{})
	if err != nil {
		return State{}, err
	}
	st, ok := res.(*api.UpdatesState)
	if !ok {
		return State{}, fmt.Errorf("updates: unexpected answer to getState: %s", tl.TypeName(res))
	}
	return stateFrom(st), nil
}

func (s *Sequencer) setState(st State) {
	s.global.pts, s.global.known = st.Pts, true
	s.qts, s.date, s.seq = st.Qts, st.Date, st.Seq
}

func (s *Sequencer) snapshot() State {
	return State{Pts: s.global.pts, Qts: s.qts, Date: s.date, Seq: s.seq}
}

func (s *Sequencer) deliver(ev *Event) {
	s.cfg.Handler.HandleEvent(ev)
}

func (s *Sequencer) channel(id int64) *scope {
	s.Lock()
	defer s.Unlock()
	if sc, ok := s.channels[id]; ok {
		return sc
	}
	sc := newScope(s, id)
	switch pts, err := LoadChannelPts(s.cfg.Storage, id); {
	case err == nil:
		sc.pts, sc.known = pts, true
	case !errors.Is(err, storage.ErrNotFound):
		sc.log.Warningf("Failed to load state: %v", err)
	}
	s.channels[id] = sc
	s.Go(sc.worker)
	return sc
}

// onEnvelope runs on the global scope goroutine.
func (s *Sequencer) onEnvelope(obj tl.Object) {
	switch u := obj.(type) {
	case *api.UpdatesTooLong:
		s.global.log.Debugf("Updates too long.")
		s.global.stopTimer()
		s.global.catchUp()
	case *api.UpdateShort:
		if u.Date > s.date {
			s.date = u.Date
		}
		s.route(u.Update, nil, nil)
	case *api.Updates:
		s.onContainer(u)
	case *tl.Raw:
		pts, count, ok := shortPts(u)
		if !ok {
			s.deliver(&Event{Update: u})
			return
		}
		s.global.onEvent(&ptsEvent{update: u, pts: pts, count: count})
	default:
		s.route(obj, nil, nil)
	}
}

func (s *Sequencer) onContainer(u *api.Updates) {
	if u.Seq != 0 {
		switch {
		case u.SeqStart <= s.seq:
			s.global.log.Debugf("Dropping duplicate updates (seq %d..%d, local %d).", u.SeqStart, u.Seq, s.seq)
			return
		case u.SeqStart > s.seq+1:
			s.global.log.Debugf("Holding updates back: seq %d needs %d.", u.SeqStart, s.seq+1)
			s.seqPending.Enqueue(int64(u.SeqStart), u)
			return
		}
	}
	s.applyContainer(u)
	s.replaySeq()
}

func (s *Sequencer) applyContainer(u *api.Updates) {
	for _, upd := range u.Updates {
		s.route(upd, u.Users, u.Chats)
	}
	if u.Seq != 0 {
		s.seq = u.Seq
	}
	if u.Date > s.date {
		s.date = u.Date
	}
	s.global.dirty = true
}

func (s *Sequencer) replaySeq() {
	for e := s.seqPending.Peek(); e != nil; e = s.seqPending.Peek() {
		u := e.Value
		if u.SeqStart > s.seq+1 {
			return
		}
		s.seqPending.Dequeue()
		if u.SeqStart <= s.seq {
			continue
		}
		s.applyContainer(u)
	}
}

// route sends a single update to its scope.
func (s *Sequencer) route(upd tl.Object, users, chats []tl.Object) {
	switch u := upd.(type) {
	case *api.UpdateChannelTooLong:
		var pts int32
		if u.Pts != nil {
			pts = *u.Pts
		}
		s.channel(u.ChannelID).inbox.push(tooLong{pts: pts})
	case api.ChannelPtsUpdate:
		s.channel(u.GetChannelID()).inbox.push(&ptsEvent{
			update: u,
			users:  users,
			chats:  chats,
			pts:    u.GetPts(),
			count:  u.GetPtsCount(),
		})
	case api.PtsUpdate:
		s.global.onEvent(&ptsEvent{
			update: u,
			users:  users,
			chats:  chats,
			pts:    u.GetPts(),
			count:  u.GetPtsCount(),
		})
	case QtsUpdate:
		s.onQts(u, users, chats)
	default:
		s.deliver(&Event{Update: upd, Users: users, Chats: chats})
	}
}

// onQts applies qts updates in sequence.  Out of sequence ones are not
// held back, the difference carries them.
func (s *Sequencer) onQts(u QtsUpdate, users, chats []tl.Object) {
	qts := u.GetQts()
	switch {
	case qts <= s.qts:
		s.global.log.Debugf("Dropping duplicate %s (qts %d, local %d).", tl.TypeName(u), qts, s.qts)
	case qts == s.qts+1 || s.qts == 0:
		s.qts = qts
		s.global.dirty = true
		s.deliver(&Event{Update: u, Users: users, Chats: chats})
	default:
		s.global.log.Infof("Gap in qts (%d after %d), fetching the difference.", qts, s.qts)
		s.global.stopTimer()
		s.global.catchUp()
	}
}

// fetchDifference runs on the global scope goroutine.
func (s *Sequencer) fetchDifference(ctx context.Context) error {
	g := s.global
	for {
		res, err := s.cfg.Fetcher.Call(ctx, &api.UpdatesGetDifference{
			Pts:  g.pts,
			Date: s.date,
			Qts:  s.qts,
		})
		if err != nil {
			return err
		}
		g.dirty = true
		switch d := res.(type) {
		case *api.UpdatesDifferenceEmpty:
			g.log.Debugf("Difference is empty.")
			s.date, s.seq = d.Date, d.Seq
			return nil
		case *api.UpdatesDifferenceTooLong:
			g.log.Noticef("Difference too long (pts %d), rebuilding the state.", d.Pts)
			return s.resync(ctx)
		case *api.UpdatesDifference:
			g.log.Debugf("Difference: %d messages, %d updates, pts %d, seq %d, slice %v.",
				len(d.NewMessages), len(d.OtherUpdates), d.State.Pts, d.State.Seq, d.Slice)
			for _, msg := range d.NewMessages {
				s.deliver(&Event{Update: msg, Users: d.Users, Chats: d.Chats, FromDifference: true})
			}
			for _, upd := range d.OtherUpdates {
				s.routeDifference(upd, d.Users, d.Chats)
			}
			g.pts = d.State.Pts
			s.qts, s.date, s.seq = d.State.Qts, d.State.Date, d.State.Seq
			if !d.Slice {
				return nil
			}
		default:
			return fmt.Errorf("updates: unexpected difference: %s", tl.TypeName(res))
		}
	}
}

// routeDifference handles an update carried by a difference.  Account
// wide updates come in order and are delivered as is.
func (s *Sequencer) routeDifference(upd tl.Object, users, chats []tl.Object) {
	switch u := upd.(type) {
	case *api.UpdateChannelTooLong, api.ChannelPtsUpdate:
		s.route(upd, users, chats)
	case api.PtsUpdate:
		if u.GetPts() <= s.global.pts {
			return
		}
		s.deliver(&Event{Update: upd, Users: users, Chats: chats, Pts: u.GetPts(), FromDifference: true})
	default:
		s.deliver(&Event{Update: upd, Users: users, Chats: chats, FromDifference: true})
	}
}

func (s *Sequencer) resync(ctx context.Context) error {
	st, err := s.getState(ctx)
	if err != nil {
		return err
	}
	s.setState(st)
	s.global.pending.Clear()
	s.seqPending.Clear()
	s.deliver(&Event{Kind: EventReset, Pts: st.Pts})
	return nil
}

// shortPts extracts pts and pts_count from the short message envelopes
// when the registry in use does not decode them.
func shortPts(r *tl.Raw) (int32, int32, bool) {
	d := tl.NewDecoder(nil, r.Body)
	var err error
	skip32 := func() {
		if err == nil {
			_, err = d.Int32()
		}
	}
	skip64 := func() {
		if err == nil {
			_, err = d.Int64()
		}
	}
	skipBytes := func() {
		if err == nil {
			_, err = d.Bytes()
		}
	}
	switch r.ID {
	case api.UpdateShortMessageID:
		// flags id user_id message
		skip32()
		skip32()
		skip64()
		skipBytes()
	case api.UpdateShortChatMessageID:
		// flags id from_id chat_id message
		skip32()
		skip32()
		skip64()
		skip64()
		skipBytes()
	case api.UpdateShortSentMessageID:
		// flags id
		skip32()
		skip32()
	default:
		return 0, 0, false
	}
	var pts, count int32
	if err == nil {
		pts, err = d.Int32()
	}
	if err == nil {
		count, err = d.Int32()
	}
	return pts, count, err == nil
}
