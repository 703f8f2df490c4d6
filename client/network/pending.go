// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"time"

	"gitlab.com/yawning/avl.git"

	"github.com/katzenpost/mtproto/core/tl"
)

type outKind int

const (
	outRPC outKind = iota
	outContainer
	outPing
	outStateReq
	outResend
	outDrop
)

func (k outKind) String() string {
	switch k {
	case outRPC:
		return "rpc"
	case outContainer:
		return "container"
	case outPing:
		return "ping"
	case outStateReq:
		return "msgs_state_req"
	case outResend:
		return "msg_resend_req"
	case outDrop:
		return "rpc_drop_answer"
	}
	return "unknown"
}

type result struct {
	obj tl.Object
	err error
}

// request is a call waiting for its result.  It outlives the messages
// that carry it: a resent request gets a fresh msg_id every time.
type request struct {
	method   string
	payload  []byte
	registry *tl.Registry
	alone    bool

	// build regenerates the payload for a given msg_id, for messages
	// whose body depends on it.
	build func(msgID int64) ([]byte, error)
	// done is called in place of sending on respCh.
	done func(tl.Object, error)

	respCh chan result

	// msgID is the id of the message currently carrying the request,
	// zero while queued.
	msgID    int64
	acked    bool
	finished bool
}

func newRequest(method string, payload []byte, reg *tl.Registry) *request {
	return &request{
		method:   method,
		payload:  payload,
		registry: reg,
		respCh:   make(chan result, 1),
	}
}

func (r *request) complete(obj tl.Object, err error) {
	if r.finished {
		return
	}
	r.finished = true
	if r.done != nil {
		r.done(obj, err)
		return
	}
	r.respCh <- result{obj: obj, err: err}
}

// outgoing is a message sent and not yet answered or acknowledged.
type outgoing struct {
	msgID  int64
	kind   outKind
	sentAt time.Time

	req         *request
	containerID int64

	children []int64
	ids      []int64
	pingID   int64

	node *avl.Node
}

// pendingSet indexes the outgoing messages by msg_id.  The tree keeps
// them ordered for new_session_created, which concerns every message
// older than a given id.
type pendingSet struct {
	byID map[int64]*outgoing
	tree *avl.Tree
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		byID: make(map[int64]*outgoing),
		tree: avl.New(func(a, b interface{}) int {
			x, y := a.(*outgoing).msgID, b.(*outgoing).msgID
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}),
	}
}

func (p *pendingSet) add(o *outgoing) {
	if old, ok := p.byID[o.msgID]; ok {
		p.remove(old)
	}
	o.node = p.tree.Insert(o)
	p.byID[o.msgID] = o
}

func (p *pendingSet) get(msgID int64) *outgoing {
	return p.byID[msgID]
}

func (p *pendingSet) remove(o *outgoing) {
	if _, ok := p.byID[o.msgID]; !ok {
		return
	}
	delete(p.byID, o.msgID)
	p.tree.Remove(o.node)
	o.node = nil
}

func (p *pendingSet) len() int {
	return len(p.byID)
}

// before returns the top level messages older than msgID, oldest first.
// Messages carried inside a container are represented by the container.
func (p *pendingSet) before(msgID int64) []*outgoing {
	var v []*outgoing
	iter := p.tree.Iterator(avl.Forward)
	for node := iter.First(); node != nil; node = iter.Next() {
		o := node.Value.(*outgoing)
		if o.msgID >= msgID {
			break
		}
		if p.topLevel(o) {
			v = append(v, o)
		}
	}
	return v
}

// topLevel reports whether o is not carried by a pending container.
func (p *pendingSet) topLevel(o *outgoing) bool {
	if o.containerID == 0 {
		return true
	}
	_, ok := p.byID[o.containerID]
	return !ok
}

// recentIDs remembers the last incoming msg_ids, including those carried
// inside containers.
type recentIDs struct {
	set  map[int64]struct{}
	ring []int64
	pos  int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{
		set:  make(map[int64]struct{}, n),
		ring: make([]int64, n),
	}
}

func (r *recentIDs) add(id int64) {
	if _, ok := r.set[id]; ok {
		return
	}
	if old := r.ring[r.pos]; old != 0 {
		delete(r.set, old)
	}
	r.ring[r.pos] = id
	r.pos = (r.pos + 1) % len(r.ring)
	r.set[id] = struct{}{}
}

func (r *recentIDs) has(id int64) bool {
	_, ok := r.set[id]
	return ok
}
