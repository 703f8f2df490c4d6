// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package updates

import (
	"context"
	"errors"
	"time"

	"github.com/katzenpost/mtproto/client/network"
	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/log"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
)

const (
	defaultGapTimeout             = 500 * time.Millisecond
	defaultBufferSize             = 1000
	defaultChannelDifferenceLimit = 100

	fetchRetryBase = time.Second
	fetchRetryMax  = 30 * time.Second
)

// Fetcher issues the catch-up calls.  *network.Manager is a Fetcher.
type Fetcher interface {
	Call(ctx context.Context, req tl.Object, opts ...network.CallOption) (tl.Object, error)
}

// EventKind tells updates from state resets apart.
type EventKind int

const (
	// EventUpdate carries one update or one message.
	EventUpdate EventKind = iota
	// EventReset tells the consumer that updates of a scope were lost and
	// the local state was rebuilt from the server.
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventUpdate:
		return "update"
	case EventReset:
		return "reset"
	}
	return "unknown"
}

// Event is delivered to the Handler.
type Event struct {
	Kind EventKind

	// ChannelID is zero for the account wide scope.
	ChannelID int64

	// Update is an update, or a message when the event comes from a
	// difference.
	Update tl.Object
	Users  []tl.Object
	Chats  []tl.Object

	// Pts is the pts the update moved its scope to, or zero.
	Pts int32

	FromDifference bool
}

// Handler consumes events.  Events of one scope are delivered in pts
// order from a single goroutine, different scopes may deliver
// concurrently.
type Handler interface {
	HandleEvent(ev *Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev *Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev *Event) {
	f(ev)
}

// Config is the Sequencer configuration.
type Config struct {
	Fetcher    Fetcher
	Handler    Handler
	Storage    storage.Storage
	LogBackend *log.Backend

	// GapTimeout is how long a gap may stay open, waiting for reordered
	// updates, before the difference is fetched.
	GapTimeout time.Duration

	// BufferSize bounds the events held back per scope while a gap is
	// open.  Overflowing it drops them and fetches the difference.
	BufferSize int

	ChannelDifferenceLimit int32

	// InputChannel returns the inputChannel used to fetch the difference
	// of a channel.  The default carries no access hash.
	InputChannel func(channelID int64) tl.Object

	// CatchUp fetches the difference on start when a stored state exists.
	CatchUp bool
}

func (c *Config) fixup() {
	if c.LogBackend == nil {
		c.LogBackend = log.NewDiscard()
	}
	if c.GapTimeout <= 0 {
		c.GapTimeout = defaultGapTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.ChannelDifferenceLimit <= 0 {
		c.ChannelDifferenceLimit = defaultChannelDifferenceLimit
	}
	if c.InputChannel == nil {
		c.InputChannel = func(id int64) tl.Object {
			return &api.InputChannel{ChannelID: id}
		}
	}
}

func (c *Config) validate() error {
	if c.Fetcher == nil {
		return errors.New("updates: no fetcher")
	}
	if c.Handler == nil {
		return errors.New("updates: no handler")
	}
	if c.Storage == nil {
		return errors.New("updates: no storage")
	}
	return nil
}
