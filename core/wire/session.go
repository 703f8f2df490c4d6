// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	hrand "github.com/katzenpost/hpqc/rand"
)

const (
	// DefaultMsgIDWindow bounds how far an incoming msg_id may be from the
	// local estimate of server time.
	DefaultMsgIDWindow = 300 * time.Second

	recentIDs = 1000
)

// SessionConfig configures a Session.
type SessionConfig struct {
	AuthKey *AuthKey

	// Rand supplies padding, session ids and msg_id entropy.  If nil the
	// system CSPRNG is used.
	Rand io.Reader

	// Now returns the local time.  Defaults to time.Now.
	Now func() time.Time

	// MsgIDWindow overrides DefaultMsgIDWindow; a negative value disables
	// the check.
	MsgIDWindow time.Duration

	// ExtraPaddingBlocks is the upper bound of random 16 byte blocks added
	// on top of the minimum padding.  It is capped so that the padding
	// never exceeds 1024 bytes.
	ExtraPaddingBlocks int
}

// Session is the client side state of an MTProto session bound to one
// auth key.  All methods are safe for concurrent use.
type Session struct {
	sync.Mutex

	key    *AuthKey
	rand   io.Reader
	rng    *rand.Rand
	now    func() time.Time
	window time.Duration
	extra  int

	id         int64
	salt       int64
	timeOffset int64
	synced     bool
	lastMsgID  int64
	seq        int32

	// lastSeq is the highest seq_no received, valid once sawSeq is set.
	lastSeq int32
	sawSeq  bool

	recent    map[int64]struct{}
	recentLog []int64
	recentPos int
}

// NewSession creates a session with a random session id.
func NewSession(cfg *SessionConfig) *Session {
	s := &Session{
		key:    cfg.AuthKey,
		rand:   cfg.Rand,
		now:    cfg.Now,
		window: cfg.MsgIDWindow,
		extra:  min(cfg.ExtraPaddingBlocks, MaxExtraPaddingBlocks),
	}
	if s.rand == nil {
		s.rand = hrand.Reader
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.window == 0 {
		s.window = DefaultMsgIDWindow
	}
	s.rng = rand.New(rand.NewSource(s.randInt63()))
	s.resetLocked()
	return s
}

func (s *Session) randInt63() int64 {
	var b [8]byte
	if _, err := io.ReadFull(s.rand, b[:]); err != nil {
		panic("wire: failed to read entropy: " + err.Error())
	}
	return int64(binary.LittleEndian.Uint64(b[:]) & (1<<63 - 1))
}

func (s *Session) resetLocked() {
	s.id = s.randInt63()
	s.lastMsgID = 0
	s.seq = 0
	s.lastSeq = 0
	s.sawSeq = false
	s.recent = make(map[int64]struct{}, recentIDs)
	s.recentLog = make([]int64, recentIDs)
	s.recentPos = 0
}

// Reset starts a new session: fresh session id, msg_id and seq_no
// counters, and an empty duplicate set.  The salt and time offset are
// kept.
func (s *Session) Reset() {
	s.Lock()
	defer s.Unlock()
	s.resetLocked()
}

// ID returns the session id.
func (s *Session) ID() int64 {
	s.Lock()
	defer s.Unlock()
	return s.id
}

// AuthKey returns the key the session encrypts with.
func (s *Session) AuthKey() *AuthKey {
	s.Lock()
	defer s.Unlock()
	return s.key
}

// SetAuthKey replaces the key and resets the session.
func (s *Session) SetAuthKey(k *AuthKey) {
	s.Lock()
	defer s.Unlock()
	s.key = k
	s.resetLocked()
}

// ServerSalt returns the current server salt.
func (s *Session) ServerSalt() int64 {
	s.Lock()
	defer s.Unlock()
	return s.salt
}

// SetServerSalt replaces the server salt.
func (s *Session) SetServerSalt(salt int64) {
	s.Lock()
	defer s.Unlock()
	s.salt = salt
}

// TimeOffset returns the difference between server and local time in
// seconds.
func (s *Session) TimeOffset() int64 {
	s.Lock()
	defer s.Unlock()
	return s.timeOffset
}

// SetTimeOffset sets the server time offset, as learned from the key
// exchange.
func (s *Session) SetTimeOffset(offset int64) {
	s.Lock()
	defer s.Unlock()
	s.timeOffset = offset
	s.synced = true
}

// SyncTime corrects the time offset from a server msg_id, as required
// after bad_msg_notification codes 16 and 17.  The msg_id counter is
// reset so the next id is generated from the corrected clock.
func (s *Session) SyncTime(serverMsgID int64) {
	s.Lock()
	defer s.Unlock()
	s.syncTimeLocked(serverMsgID)
	s.lastMsgID = 0
}

func (s *Session) syncTimeLocked(serverMsgID int64) {
	s.timeOffset = (serverMsgID >> 32) - s.now().Unix()
	s.synced = true
}

// ResetIncoming forgets the highest seq_no received.  The server may
// start a new session on a new connection, restarting its numbering.
func (s *Session) ResetIncoming() {
	s.Lock()
	defer s.Unlock()
	s.lastSeq = 0
	s.sawSeq = false
}

// NextMsgID returns a new msg_id.  Ids are divisible by 4 and strictly
// increasing within the session.
func (s *Session) NextMsgID() int64 {
	s.Lock()
	defer s.Unlock()
	return s.nextMsgIDLocked()
}

func (s *Session) nextMsgIDLocked() int64 {
	now := s.now()
	sec := now.Unix() + s.timeOffset
	ms := int64(now.Nanosecond() / int(time.Millisecond))
	low := ms<<21 | int64(s.rng.Intn(0xffff))<<3 | 4

	id := sec<<32 | low
	if id <= s.lastMsgID {
		id = s.lastMsgID + 4
	}
	s.lastMsgID = id
	return id
}

// NextSeqNo returns the seq_no for the next outgoing message.
func (s *Session) NextSeqNo(contentRelated bool) int32 {
	s.Lock()
	defer s.Unlock()
	return s.nextSeqNoLocked(contentRelated)
}

func (s *Session) nextSeqNoLocked(contentRelated bool) int32 {
	seqNo := s.seq * 2
	if contentRelated {
		seqNo++
		s.seq++
	}
	return seqNo
}

// Wrap assigns a msg_id and seq_no to payload and encrypts it.
func (s *Session) Wrap(payload []byte, contentRelated bool) (msgID int64, seqNo int32, envelope []byte, err error) {
	s.Lock()
	defer s.Unlock()

	msgID = s.nextMsgIDLocked()
	seqNo = s.nextSeqNoLocked(contentRelated)
	envelope, err = s.encryptLocked(msgID, seqNo, payload)
	return
}

// Encrypt encrypts payload under an already assigned msg_id and seq_no.
func (s *Session) Encrypt(msgID int64, seqNo int32, payload []byte) ([]byte, error) {
	s.Lock()
	defer s.Unlock()
	return s.encryptLocked(msgID, seqNo, payload)
}

func (s *Session) encryptLocked(msgID int64, seqNo int32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, errPayloadTooBig
	}
	msg := make([]byte, 16+len(payload))
	binary.LittleEndian.PutUint64(msg[0:], uint64(msgID))
	binary.LittleEndian.PutUint32(msg[8:], uint32(seqNo))
	binary.LittleEndian.PutUint32(msg[12:], uint32(len(payload)))
	copy(msg[16:], payload)

	extra := 0
	if s.extra > 0 {
		extra = s.rng.Intn(s.extra + 1)
	}
	return s.key.Encrypt(s.rand, s.salt, s.id, msg, extra)
}

// Unwrap decrypts an envelope and validates it against the session:
// besides the checks of AuthKey.Decrypt, the msg_id must be odd, inside
// the time window and not seen before, and the seq_no must not go
// backwards.
func (s *Session) Unwrap(env []byte) (*Message, error) {
	s.Lock()
	defer s.Unlock()

	m, err := s.key.Decrypt(env, s.id)
	if err != nil {
		return nil, err
	}
	if m.MsgID%2 == 0 {
		return nil, ErrMsgIDParity
	}
	if !s.synced {
		// A stored key with no handshake this run: adopt the server clock.
		s.syncTimeLocked(m.MsgID)
	}
	if s.window > 0 {
		serverNow := s.now().Unix() + s.timeOffset
		delta := time.Duration((m.MsgID>>32)-serverNow) * time.Second
		if delta > s.window || delta < -s.window {
			return nil, ErrMsgIDWindow
		}
	}
	if _, ok := s.recent[m.MsgID]; ok {
		return nil, ErrDuplicate
	}
	if err := s.checkSeqNoLocked(m.SeqNo); err != nil {
		return nil, err
	}
	if old := s.recentLog[s.recentPos]; old != 0 {
		delete(s.recent, old)
	}
	s.recentLog[s.recentPos] = m.MsgID
	s.recentPos = (s.recentPos + 1) % recentIDs
	s.recent[m.MsgID] = struct{}{}
	return m, nil
}

// checkSeqNoLocked enforces that incoming seq_no values never decrease.
// Equal values are allowed, since service messages and containers do not
// consume a number.
func (s *Session) checkSeqNoLocked(seqNo int32) error {
	if s.sawSeq && seqNo < s.lastSeq {
		return ErrSeqNoRegression
	}
	s.lastSeq = seqNo
	s.sawSeq = true
	return nil
}
