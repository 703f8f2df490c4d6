// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
)

func unhex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

var (
	testKeyBytes = bytes.Repeat(unhex("98cb29c6ffa89e79da695a54f572e6cb101e81c688b63a4bf73c3622dec230e0"), 8)

	vectorSessionID uint64 = 0xbeeffeedfeedbeef
	vectorMsgID     uint64 = 0x1234beefbeef1234

	vectorEnvelope = "40fa5bb7cb56a8950c394b884f1529efc42fea22d972fea650a714ce6d2d1bdb" +
		"3d98ff5929b8768c401771a69795f36a7e720dcafac2efbccd0ba368e8a7f48b" +
		"07362cac1a32ffcabe188b51a36cc4d54e1d0633cf9eaf35"
)

func testKey(t *testing.T) *AuthKey {
	k, err := NewAuthKey(testKeyBytes)
	require.NoError(t, err)
	return k
}

func detReader(t *testing.T, seed byte) *rand.DeterministicRandReader {
	r, err := rand.NewDeterministicRandReader(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return r
}

// serverEnvelope encrypts a message in the server to client direction.
func serverEnvelope(t *testing.T, k *AuthKey, salt, sessionID, msgID int64, seqNo int32, body []byte) []byte {
	require := require.New(t)

	pt := make([]byte, 32+len(body))
	binary.LittleEndian.PutUint64(pt[0:], uint64(salt))
	binary.LittleEndian.PutUint64(pt[8:], uint64(sessionID))
	binary.LittleEndian.PutUint64(pt[16:], uint64(msgID))
	binary.LittleEndian.PutUint32(pt[24:], uint32(seqNo))
	binary.LittleEndian.PutUint32(pt[28:], uint32(len(body)))
	copy(pt[32:], body)
	pad := paddingSize(len(pt), 0)
	pt = append(pt, bytes.Repeat([]byte{0xaa}, pad)...)

	msgKey := kdf.MessageKey(k.key[:], pt, true)
	key, iv := kdf.MessageKeyIV(k.key[:], msgKey[:], true)
	ct, err := ige.Encrypt(key, iv, pt)
	require.NoError(err)

	out := append([]byte(nil), k.id[:]...)
	out = append(out, msgKey[:]...)
	return append(out, ct...)
}

// openClientEnvelope decrypts a client envelope as the server would.
func openClientEnvelope(t *testing.T, k *AuthKey, env []byte) []byte {
	require := require.New(t)

	msgKey := env[8:24]
	key, iv := kdf.MessageKeyIV(k.key[:], msgKey, false)
	pt, err := ige.Decrypt(key, iv, env[24:])
	require.NoError(err)
	expected := kdf.MessageKey(k.key[:], pt, false)
	require.Equal(expected[:], msgKey)
	return pt
}

func TestAuthKeyDerivatives(t *testing.T) {
	require := require.New(t)

	k := testKey(t)
	id := k.ID()
	require.Equal("40fa5bb7cb56a895", hex.EncodeToString(id[:]))
	require.Equal("f73c3622dec230e098cb29c6ffa89e79da695a54f572e6cb101e81c688b63a4b", hex.EncodeToString(k.ClientSalt()))
	require.Equal("98cb29c6ffa89e79da695a54f572e6cb101e81c688b63a4bf73c3622dec230e0", hex.EncodeToString(k.ServerSalt()))
	require.Equal(testKeyBytes, k.Bytes())
	require.False(k.Temporary())

	_, err := NewAuthKey(testKeyBytes[:255])
	require.Error(err)
}

func TestDecryptVectors(t *testing.T) {
	k := testKey(t)
	sid := int64(vectorSessionID)

	t.Run("valid", func(t *testing.T) {
		require := require.New(t)
		for _, suffix := range []string{"", "deadbeef"} {
			m, err := k.Decrypt(unhex(vectorEnvelope+suffix), sid)
			require.NoError(err)
			require.Equal(int64(vectorMsgID), m.MsgID)
			require.Equal(int32(777), m.SeqNo)
			require.Equal("hello, world!!!!", string(m.Body))
		}
	})

	invalid := []struct {
		name string
		env  string
		err  error
	}{
		{
			"msg key",
			"40fa5bb7cb56a8950000000000000000000000000000000050a714ce6d2d1bdb" +
				"3d98ff5929b8768c401771a69795f36a7e720dcafac2efbccd0ba368e8a7f48b" +
				"07362cac1a32ffcabe188b51a36cc4d54e1d0633cf9eaf35",
			ErrMsgKeyMismatch,
		},
		{
			"session id",
			"40fa5bb7cb56a895a986a7e97f4e90aa2769b5e702c6e86f5e1e82c6ff0c6829" +
				"2521a2ba9704fa37fb341d895cf32662c6cf47ba31cbf27c30d5c03f6c2930f4" +
				"30fd8858b836b73fe32d4a95b8ebcdbc9ca8908f7964c40a",
			ErrSessionMismatch,
		},
		{
			"length too long",
			"40fa5bb7cb56a8950d19412233dd5d24be697c73274e08fbe515cf65e0c5f70c" +
				"ad75fd2badc18c9f999f287351144eeb1cfcaa9bea33ef5058999ad96a498306" +
				"08d2859425685a55b21fab413bfabc42ec5da283853b28c0",
			ErrBadLength,
		},
		{
			"length unaligned",
			"40fa5bb7cb56a8957b4e4bec561eee4a5a1025bc8a35d3d0c79a3685d2b90ff0" +
				"5f638e9c42c9fd9448b0ce8e7d49e7ea1ce458e47b825b5c7fd8ddf5b4fded46" +
				"2a4bcc02f3ff2e89de6764d6d219f575e457fdcf8c163cdf",
			ErrBadLength,
		},
		{
			"padding",
			"40fa5bb7cb56a895133671d1c637a9836e2c64b4d1a0521d8a25a6416fd4dc9e" +
				"79f9478fb837703cc9efa0a19d12143c2a26e57cb4bc64d7bc972dd8f19c53c590cc258162f44afc",
			ErrBadPadding,
		},
		{
			"unknown key",
			"00fa5bb7cb56a8950c394b884f1529efc42fea22d972fea650a714ce6d2d1bdb" +
				"3d98ff5929b8768c401771a69795f36a7e720dcafac2efbccd0ba368e8a7f48b" +
				"07362cac1a32ffcabe188b51a36cc4d54e1d0633cf9eaf35",
			ErrUnknownAuthKey,
		},
		{
			"short",
			"40fa5bb7cb56a8950c394b884f1529ef",
			ErrShortEnvelope,
		},
	}
	for _, v := range invalid {
		t.Run(v.name, func(t *testing.T) {
			require := require.New(t)
			_, err := k.Decrypt(unhex(v.env), sid)
			require.ErrorIs(err, v.err)
			require.ErrorIs(err, ErrIntegrity)
		})
	}
}

func newTestSession(t *testing.T, now func() time.Time) *Session {
	s := NewSession(&SessionConfig{
		AuthKey: testKey(t),
		Rand:    detReader(t, 1),
		Now:     now,
	})
	s.SetServerSalt(0x0102030405060708)
	s.SetTimeOffset(0)
	return s
}

func TestWrapUnwrap(t *testing.T) {
	require := require.New(t)

	clock := time.Unix(1700000000, 0)
	s := newTestSession(t, func() time.Time { return clock })
	k := s.AuthKey()

	payload := []byte("ping ping ping!!")
	msgID, seqNo, env, err := s.Wrap(payload, true)
	require.NoError(err)
	require.Equal(int32(1), seqNo)
	require.Zero(msgID % 4)
	require.Equal(clock.Unix(), msgID>>32)
	require.Zero((len(env) - 24) % 16)

	pt := openClientEnvelope(t, k, env)
	require.Equal(uint64(0x0102030405060708), binary.LittleEndian.Uint64(pt[0:]))
	require.Equal(uint64(s.ID()), binary.LittleEndian.Uint64(pt[8:]))
	require.Equal(uint64(msgID), binary.LittleEndian.Uint64(pt[16:]))
	require.Equal(uint32(len(payload)), binary.LittleEndian.Uint32(pt[28:]))
	require.Equal(payload, pt[32:32+len(payload)])
	pad := len(pt) - 32 - len(payload)
	require.True(pad >= 12 && pad <= 1024)

	serverID := clock.Unix()<<32 | 1
	in := serverEnvelope(t, k, 0x0102030405060708, s.ID(), serverID, 1, []byte("pong"))
	m, err := s.Unwrap(in)
	require.NoError(err)
	require.Equal(serverID, m.MsgID)
	require.Equal([]byte("pong"), m.Body)

	t.Run("duplicate", func(t *testing.T) {
		_, err := s.Unwrap(in)
		require.ErrorIs(err, ErrDuplicate)
	})

	t.Run("even msg id", func(t *testing.T) {
		env := serverEnvelope(t, k, 0, s.ID(), clock.Unix()<<32|8, 1, []byte("pong"))
		_, err := s.Unwrap(env)
		require.ErrorIs(err, ErrMsgIDParity)
	})

	t.Run("outside window", func(t *testing.T) {
		old := (clock.Unix()-301)<<32 | 1
		env := serverEnvelope(t, k, 0, s.ID(), old, 1, []byte("pong"))
		_, err := s.Unwrap(env)
		require.ErrorIs(err, ErrMsgIDWindow)
	})

	t.Run("bit flips", func(t *testing.T) {
		fresh := serverEnvelope(t, k, 0, s.ID(), clock.Unix()<<32|5, 2, []byte("pong"))
		for _, pos := range []int{0, 7, 8, 23, 24, 40, len(fresh) - 1} {
			flipped := append([]byte(nil), fresh...)
			flipped[pos] ^= 0x01
			_, err := s.Unwrap(flipped)
			require.ErrorIs(err, ErrIntegrity, "flip at %d", pos)
		}
		_, err := s.Unwrap(fresh)
		require.NoError(err)
	})
}

func TestMsgIDMonotonic(t *testing.T) {
	require := require.New(t)

	clock := time.Unix(1700000000, 123456789)
	s := newTestSession(t, func() time.Time { return clock })

	last := int64(0)
	for i := 0; i < 1000; i++ {
		id := s.NextMsgID()
		require.Zero(id % 4)
		require.Greater(id, last)
		last = id
	}

	// The clock going backwards must not produce a smaller id.
	clock = clock.Add(-time.Hour)
	require.Greater(s.NextMsgID(), last)
}

func TestSeqNo(t *testing.T) {
	require := require.New(t)

	s := newTestSession(t, nil)
	require.Equal(int32(1), s.NextSeqNo(true))
	require.Equal(int32(3), s.NextSeqNo(true))
	require.Equal(int32(4), s.NextSeqNo(false))
	require.Equal(int32(5), s.NextSeqNo(true))

	s.Reset()
	require.Equal(int32(0), s.NextSeqNo(false))
}

func TestIncomingSeqNo(t *testing.T) {
	require := require.New(t)

	clock := time.Unix(1700000000, 0)
	s := newTestSession(t, func() time.Time { return clock })
	k := s.AuthKey()

	msgID := clock.Unix() << 32
	next := func(seqNo int32) error {
		msgID += 4
		_, err := s.Unwrap(serverEnvelope(t, k, 0, s.ID(), msgID|1, seqNo, []byte("pong")))
		return err
	}

	require.NoError(next(9))
	err := next(1)
	require.ErrorIs(err, ErrSeqNoRegression)
	require.ErrorIs(err, ErrIntegrity)

	t.Run("rejected message not remembered", func(t *testing.T) {
		require.NoError(next(9))
		require.ErrorIs(next(7), ErrSeqNoRegression)
	})

	t.Run("service messages share a number", func(t *testing.T) {
		require.NoError(next(10))
		require.NoError(next(10))
		require.NoError(next(11))
		require.ErrorIs(next(10), ErrSeqNoRegression)
	})

	t.Run("new connection", func(t *testing.T) {
		s.ResetIncoming()
		require.NoError(next(1))
		require.NoError(next(3))
	})

	t.Run("new session", func(t *testing.T) {
		require.NoError(next(21))
		s.Reset()
		require.NoError(next(1))
	})
}

func TestPaddingBound(t *testing.T) {
	require := require.New(t)

	for n := 0; n < 64; n++ {
		require.LessOrEqual(paddingSize(n, 1000), 1024)
		require.GreaterOrEqual(paddingSize(n, 1000), 1024-15)
		require.Zero((n + paddingSize(n, 1000)) % 16)
		require.Equal(paddingSize(n, 0), paddingSize(n, -3))
	}

	s := NewSession(&SessionConfig{
		AuthKey:            testKey(t),
		Rand:               detReader(t, 2),
		ExtraPaddingBlocks: 200,
	})
	payload := []byte("ping")
	maxPad := 0
	for i := 0; i < 200; i++ {
		_, _, env, err := s.Wrap(payload, true)
		require.NoError(err)
		pad := len(env) - envelopeStart - headerSize - len(payload)
		require.GreaterOrEqual(pad, 12)
		require.LessOrEqual(pad, 1024)
		maxPad = max(maxPad, pad)
	}
	// The random extra blocks actually vary the size.
	require.Greater(maxPad, 27)
}

func TestSyncTime(t *testing.T) {
	require := require.New(t)

	clock := time.Unix(1700000000, 0)
	s := newTestSession(t, func() time.Time { return clock })
	s.SyncTime((clock.Unix() + 42) << 32)
	require.Equal(int64(42), s.TimeOffset())
	require.Equal(clock.Unix()+42, s.NextMsgID()>>32)

	oldID := s.ID()
	s.Reset()
	require.NotEqual(oldID, s.ID())
	require.Equal(int64(42), s.TimeOffset())
}

func TestPlain(t *testing.T) {
	require := require.New(t)

	b := EncodePlain(0x51e57ac42770964a, []byte{1, 2, 3, 4})
	require.True(IsPlain(b))
	require.Equal("0000000000000000"+"4a967027c47ae551"+"04000000"+"01020304", hex.EncodeToString(b))

	id, payload, err := DecodePlain(b)
	require.NoError(err)
	require.Equal(int64(0x51e57ac42770964a), id)
	require.Equal([]byte{1, 2, 3, 4}, payload)

	_, _, err = DecodePlain(b[:10])
	require.Error(err)
	_, _, err = DecodePlain(b[:22])
	require.Error(err)
	b[0] = 1
	_, _, err = DecodePlain(b)
	require.Error(err)
}

func TestBindMessage(t *testing.T) {
	require := require.New(t)

	k := testKey(t)
	payload := bytes.Repeat([]byte{0x42}, 40)
	env, err := EncryptBindMessage(detReader(t, 2), k, 0x5000000000000004, payload)
	require.NoError(err)

	id := k.ID()
	require.Equal(id[:], env[:8])
	msgKey := env[8:24]
	key, iv := kdf.MessageKeyIVv1(k.key[:], msgKey, false)
	pt, err := ige.Decrypt(key, iv, env[24:])
	require.NoError(err)

	require.Equal(uint64(0x5000000000000004), binary.LittleEndian.Uint64(pt[16:]))
	require.Equal(uint32(0), binary.LittleEndian.Uint32(pt[24:]))
	require.Equal(uint32(len(payload)), binary.LittleEndian.Uint32(pt[28:]))
	require.Equal(payload, pt[32:32+len(payload)])
	require.Equal(kdf.SHA1(pt[:32+len(payload)])[4:20], msgKey)
}
