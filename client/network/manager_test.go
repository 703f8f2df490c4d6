// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/transport"
	"github.com/katzenpost/mtproto/core/wire"
	"github.com/katzenpost/mtproto/core/wire/wiretest"
)

const testDC = 2

var serverRegistry = mt.Registry.Merge(api.Registry)

// fakeServer speaks the encrypted protocol over one end of a pipe, with a
// pre-shared key.
type fakeServer struct {
	t    *testing.T
	key  *wire.AuthKey
	salt int64

	// answer is called for every content message that is not a
	// container or an ack.  It runs on the server read loop.
	answer func(s *fakeServer, msgID int64, obj tl.Object)

	outCh chan []byte

	// sendMu keeps seq_no order and delivery order the same.
	sendMu sync.Mutex

	sync.Mutex
	sessionID  int64
	n          int64
	containers int
	received   []tl.Object
}

func (s *fakeServer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go s.serve(server)
	return client, nil
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case pkt := <-s.outCh:
				if err := (transport.Intermediate{}).WritePacket(conn, pkt); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	var tag [4]byte
	if _, err := io.ReadFull(conn, tag[:]); err != nil {
		return
	}
	for {
		pkt, err := transport.Intermediate{}.ReadPacket(conn)
		if err != nil {
			return
		}
		m, err := wiretest.OpenClientEnvelope(s.key, pkt)
		if err != nil {
			s.t.Errorf("server: %v", err)
			return
		}
		s.Lock()
		s.sessionID = m.SessionID
		s.Unlock()
		if m.Salt != s.salt {
			s.send(&mt.BadServerSalt{
				BadMsgID:      m.MsgID,
				BadMsgSeqNo:   m.SeqNo,
				ErrorCode:     48,
				NewServerSalt: s.salt,
			}, false)
			continue
		}
		s.dispatch(m.MsgID, m.Body)
	}
}

func (s *fakeServer) dispatch(msgID int64, body []byte) {
	body, err := mt.Unpack(body)
	if err != nil {
		s.t.Errorf("server: %v", err)
		return
	}
	obj, err := tl.Decode(serverRegistry, body)
	if err != nil {
		s.t.Errorf("server: %v", err)
		return
	}
	switch v := obj.(type) {
	case *mt.MsgContainer:
		s.Lock()
		s.containers++
		s.Unlock()
		for _, child := range v.Messages {
			s.dispatch(child.MsgID, child.Body)
		}
		return
	case *mt.MsgsAck:
		return
	}
	s.Lock()
	s.received = append(s.received, obj)
	s.Unlock()
	s.answer(s, msgID, obj)
}

func (s *fakeServer) send(obj tl.Object, contentRelated bool) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	body, err := tl.Encode(obj)
	if err != nil {
		s.t.Errorf("server: %v", err)
		return
	}
	s.Lock()
	s.n++
	msgID := time.Now().Unix()<<32 | s.n<<2 | 1
	seqNo := int32(s.n * 2)
	if contentRelated {
		seqNo++
	}
	sessionID := s.sessionID
	s.Unlock()
	env, err := wiretest.ServerEnvelope(s.key, s.salt, sessionID, msgID, seqNo, body)
	if err != nil {
		s.t.Errorf("server: %v", err)
		return
	}
	s.outCh <- env
}

func (s *fakeServer) result(reqMsgID int64, obj tl.Object) {
	b, err := tl.Encode(obj)
	if err != nil {
		s.t.Errorf("server: %v", err)
		return
	}
	s.send(&mt.RPCResult{ReqMsgID: reqMsgID, Result: b}, true)
}

func (s *fakeServer) count(match func(tl.Object) bool) int {
	s.Lock()
	defer s.Unlock()
	n := 0
	for _, obj := range s.received {
		if match(obj) {
			n++
		}
	}
	return n
}

func (s *fakeServer) containerCount() int {
	s.Lock()
	defer s.Unlock()
	return s.containers
}

// defaultAnswer answers getState with pts 42, pings with pongs and
// everything else, dropped answers included, with an error.
func defaultAnswer(s *fakeServer, msgID int64, obj tl.Object) {
	switch v := obj.(type) {
	case *api.UpdatesGetState:
		s.result(msgID, &api.UpdatesState{Pts: 42, Seq: 1})
	case *mt.Ping:
		s.send(&mt.Pong{MsgID: msgID, PingID: v.PingID}, false)
	case *mt.PingDelayDisconnect:
		s.send(&mt.Pong{MsgID: msgID, PingID: v.PingID}, false)
	default:
		s.result(msgID, &mt.RPCError{ErrorCode: 400, ErrorMessage: "METHOD_INVALID"})
	}
}

type updateSink chan tl.Object

func (u updateSink) HandleUpdates(obj tl.Object) {
	select {
	case u <- obj:
	default:
	}
}

func newTestManager(t *testing.T, srv *fakeServer, containerDelay time.Duration, updates UpdateHandler) *Manager {
	require := require.New(t)

	b := make([]byte, wire.AuthKeySize)
	_, err := rand.Read(b)
	require.NoError(err)
	srv.key, err = wire.NewAuthKey(b)
	require.NoError(err)
	srv.t = t
	srv.outCh = make(chan []byte, 64)
	if srv.answer == nil {
		srv.answer = defaultAnswer
	}

	store := storage.NewMemory()
	require.NoError(store.SetAuthKey(testDC, b))

	m, err := New(&Config{
		DC:             testDC,
		Address:        func(int, bool) string { return "127.0.0.1:443" },
		Dialer:         srv,
		Storage:        store,
		ContainerDelay: containerDelay,
		UpdateHandler:  updates,
	})
	require.NoError(err)
	t.Cleanup(m.Close)
	return m
}

func TestManagerCall(t *testing.T) {
	t.Parallel()

	t.Run("result", func(t *testing.T) {
		require := require.New(t)
		m := newTestManager(t, new(fakeServer), -1, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := m.Call(ctx, &api.UpdatesGetState{})
		require.NoError(err)
		st, ok := res.(*api.UpdatesState)
		require.True(ok)
		require.Equal(int32(42), st.Pts)
	})

	t.Run("rpc error", func(t *testing.T) {
		require := require.New(t)
		srv := &fakeServer{answer: func(s *fakeServer, msgID int64, obj tl.Object) {
			s.result(msgID, &mt.RPCError{ErrorCode: 400, ErrorMessage: "PEER_ID_INVALID"})
		}}
		m := newTestManager(t, srv, -1, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := m.Call(ctx, &api.UpdatesGetState{})
		var rerr *RPCError
		require.True(errors.As(err, &rerr))
		require.Equal(int32(400), rerr.Code)
		require.Equal("PEER_ID_INVALID", rerr.Message)
		require.Equal("updates.getState", rerr.Method)
	})

	t.Run("bad server salt", func(t *testing.T) {
		require := require.New(t)
		srv := &fakeServer{salt: 0x1122334455667788}
		m := newTestManager(t, srv, -1, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := m.Call(ctx, &api.UpdatesGetState{})
		require.NoError(err)
		require.Equal(int32(42), res.(*api.UpdatesState).Pts)
	})

	t.Run("ping", func(t *testing.T) {
		require := require.New(t)
		m := newTestManager(t, new(fakeServer), -1, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rtt, err := m.Ping(ctx)
		require.NoError(err)
		require.Greater(rtt, time.Duration(0))
	})
}

func TestManagerCoalescesCalls(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	srv := new(fakeServer)
	m := newTestManager(t, srv, 100*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Call(ctx, &api.UpdatesGetState{})
			if err == nil {
				if st, ok := res.(*api.UpdatesState); !ok || st.Pts != 42 {
					err = errors.New("unexpected result")
				}
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}
	require.GreaterOrEqual(srv.containerCount(), 1)
	require.Equal(n, srv.count(func(obj tl.Object) bool {
		_, ok := obj.(*api.UpdatesGetState)
		return ok
	}))
}

func TestManagerCancelDropsAnswer(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	srv := &fakeServer{answer: func(s *fakeServer, msgID int64, obj tl.Object) {
		switch obj.(type) {
		case *api.UpdatesGetState:
			// Never answered.
		default:
			defaultAnswer(s, msgID, obj)
		}
	}}
	m := newTestManager(t, srv, -1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := m.Call(ctx, &api.UpdatesGetState{})
	require.ErrorIs(err, context.DeadlineExceeded)

	require.Eventually(func() bool {
		return srv.count(func(obj tl.Object) bool {
			_, ok := obj.(*mt.RPCDropAnswer)
			return ok
		}) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManagerDeliversUpdates(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	srv := &fakeServer{answer: func(s *fakeServer, msgID int64, obj tl.Object) {
		if _, ok := obj.(*api.UpdatesGetState); ok {
			s.send(&api.UpdatesTooLong{}, true)
		}
		defaultAnswer(s, msgID, obj)
	}}
	sink := make(updateSink, 4)
	m := newTestManager(t, srv, -1, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.Call(ctx, &api.UpdatesGetState{})
	require.NoError(err)

	select {
	case obj := <-sink:
		require.IsType(&api.UpdatesTooLong{}, obj)
	case <-ctx.Done():
		require.FailNow("no update delivered")
	}
}

func TestManagerPrimaryDC(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	store := storage.NewMemory()
	cfg := &Config{
		DC: 2,
		Address: func(dc int, _ bool) string {
			if dc > 5 {
				return ""
			}
			return "127.0.0.1:443"
		},
		Storage: store,
	}
	m, err := New(cfg)
	require.NoError(err)
	require.Equal(2, m.PrimaryDC())
	m.SetPrimaryDC(4)
	m.Close()

	m, err = New(cfg)
	require.NoError(err)
	defer m.Close()
	require.Equal(4, m.PrimaryDC())

	_, err = m.Call(context.Background(), &api.UpdatesGetState{}, WithDC(9))
	require.ErrorContains(err, "unknown DC 9")
}

func TestNestedContainerDropped(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	m, err := New(&Config{
		DC:      testDC,
		Address: func(int, bool) string { return "127.0.0.1:443" },
		Storage: storage.NewMemory(),
	})
	require.NoError(err)
	defer m.Close()
	c := newConnection(m, newDCState(m, testDC), KindMain)

	encode := func(obj tl.Object) []byte {
		b, err := tl.Encode(obj)
		require.NoError(err)
		return b
	}
	const (
		outerID  = int64(0x100001)
		pongID   = int64(0x100005)
		innerID  = int64(0x100009)
		hiddenID = int64(0x10000d)
	)
	inner := encode(&mt.MsgContainer{Messages: []mt.Message{
		{MsgID: hiddenID, SeqNo: 2, Body: encode(&mt.Pong{MsgID: 4, PingID: 2})},
	}})
	outer := encode(&mt.MsgContainer{Messages: []mt.Message{
		{MsgID: pongID, SeqNo: 2, Body: encode(&mt.Pong{MsgID: 8, PingID: 1})},
		{MsgID: innerID, SeqNo: 2, Body: inner},
	}})

	require.NoError(c.handleMessage(outerID, 2, outer))
	require.True(c.recent.has(pongID))
	require.False(c.recent.has(hiddenID))
}

func TestConfigPaddingDefault(t *testing.T) {
	require := require.New(t)

	cfg := new(Config)
	cfg.fixup()
	require.Equal(defaultPaddingBlocks, cfg.ExtraPaddingBlocks)

	cfg = &Config{ExtraPaddingBlocks: -1}
	cfg.fixup()
	require.Zero(cfg.ExtraPaddingBlocks)

	cfg = &Config{ExtraPaddingBlocks: 40}
	cfg.fixup()
	require.Equal(40, cfg.ExtraPaddingBlocks)
}
