// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package authkey implements the client side of the MTProto auth key
// exchange: a Diffie-Hellman exchange authenticated by the server RSA
// key, carried over unencrypted envelopes.
package authkey

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
	"github.com/katzenpost/mtproto/core/crypto/pq"
	"github.com/katzenpost/mtproto/core/crypto/rsakey"
	"github.com/katzenpost/mtproto/core/retry"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/wire"
)

const (
	// DefaultAttempts bounds how many times Run restarts the exchange
	// after transport failures.
	DefaultAttempts = 3

	// DefaultStepTimeout bounds each request/response round trip.
	DefaultStepTimeout = 15 * time.Second

	testModeOffset = 10000
	maxDHRetries   = 5
)

// Conn carries unencrypted envelopes.  Each Send writes one packet and
// each Recv returns one packet.
type Conn interface {
	Send(ctx context.Context, packet []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// Config configures an Exchanger.
type Config struct {
	// DC is the datacenter id.
	DC int
	// TestMode selects the test servers, shifting the DC id by 10000.
	TestMode bool
	// Media selects media-only DCs, negating the DC id.
	Media bool

	// ExpiresIn requests a temporary key valid for that long.  Zero
	// requests a permanent key.
	ExpiresIn time.Duration

	// Keys holds the server RSA keys.  Defaults to rsakey.Default().
	Keys *rsakey.Table

	// Rand overrides the entropy source, for deterministic tests.
	Rand io.Reader
	// Now overrides the clock.
	Now func() time.Time

	Attempts    int
	StepTimeout time.Duration

	Log *logging.Logger
}

// Result is the outcome of a successful exchange.
type Result struct {
	Key        *wire.AuthKey
	ServerSalt int64
	// TimeOffset is server time minus local time, in seconds.
	TimeOffset int64
}

// Exchanger runs key exchanges.  It keeps no per-exchange state, so one
// Exchanger may serve concurrent exchanges on different connections.
type Exchanger struct {
	cfg  Config
	log  *logging.Logger
	keys *rsakey.Table
}

// New returns an Exchanger for cfg.
func New(cfg *Config) *Exchanger {
	x := &Exchanger{cfg: *cfg}
	if x.cfg.Rand == nil {
		x.cfg.Rand = rand.Reader
	}
	if x.cfg.Now == nil {
		x.cfg.Now = time.Now
	}
	if x.cfg.Attempts <= 0 {
		x.cfg.Attempts = DefaultAttempts
	}
	if x.cfg.StepTimeout <= 0 {
		x.cfg.StepTimeout = DefaultStepTimeout
	}
	x.keys = x.cfg.Keys
	if x.keys == nil {
		x.keys = rsakey.Default()
	}
	x.log = x.cfg.Log
	if x.log == nil {
		x.log = logging.MustGetLogger("authkey")
	}
	return x
}

// Run performs the exchange over conn.  Transient transport failures
// restart the exchange from scratch with fresh nonces, up to the configured
// number of attempts; any other failure is returned at once.
func (x *Exchanger) Run(ctx context.Context, conn Conn) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= x.cfg.Attempts; attempt++ {
		h := x.newHandshake(conn)
		res, err := h.run(ctx)
		if err == nil {
			return res, nil
		}
		var herr *HandshakeError
		if errors.As(err, &herr) {
			herr.Attempt = attempt
			if !herr.Transport || !retry.IsTransientError(herr.Err) || ctx.Err() != nil {
				return nil, herr
			}
		}
		x.log.Noticef("DC %d: key exchange attempt %d failed: %v", x.cfg.DC, attempt, err)
		lastErr = err
	}
	return nil, lastErr
}

func (x *Exchanger) dcID() int32 {
	dc := int32(x.cfg.DC)
	if x.cfg.TestMode {
		dc += testModeOffset
	}
	if x.cfg.Media {
		dc = -dc
	}
	return dc
}

// handshake is the state of one exchange attempt.
type handshake struct {
	x    *Exchanger
	conn Conn
	ids  *wire.Session

	state       State
	nonce       tl.Int128
	serverNonce tl.Int128
	newNonce    tl.Int256
	fps         []int64
}

func (x *Exchanger) newHandshake(conn Conn) *handshake {
	return &handshake{
		x:     x,
		conn:  conn,
		ids:   wire.NewSession(&wire.SessionConfig{Rand: x.cfg.Rand, Now: x.cfg.Now}),
		state: StateRequestPQ,
	}
}

func (h *handshake) fail(msg string, err error) *HandshakeError {
	e := newError(h.state, msg, err)
	e.DC = h.x.cfg.DC
	e.Temporary = h.x.cfg.ExpiresIn > 0
	if h.fps != nil {
		e.ServerNonce = append([]byte(nil), h.serverNonce[:]...)
		e.Fingerprints = h.fps
	}
	return e
}

func (h *handshake) transportFail(msg string, err error) *HandshakeError {
	e := h.fail(msg, err)
	e.Transport = true
	return e
}

func (h *handshake) random(b []byte) error {
	_, err := io.ReadFull(h.x.cfg.Rand, b)
	return err
}

// roundTrip sends req in a plain envelope and decodes the answer with the
// service schema.
func (h *handshake) roundTrip(ctx context.Context, req tl.Object) (tl.Object, error) {
	payload, err := tl.Encode(req)
	if err != nil {
		return nil, h.fail("failed to encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.x.cfg.StepTimeout)
	defer cancel()

	if err := h.conn.Send(ctx, wire.EncodePlain(h.ids.NextMsgID(), payload)); err != nil {
		return nil, h.transportFail("send failed", err)
	}
	raw, err := h.conn.Recv(ctx)
	if err != nil {
		return nil, h.transportFail("receive failed", err)
	}
	_, body, err := wire.DecodePlain(raw)
	if err != nil {
		return nil, h.fail("invalid plain envelope", err)
	}
	resp, err := tl.Decode(mt.Registry, body)
	if err != nil {
		return nil, h.fail("failed to decode response", err)
	}
	return resp, nil
}

func (h *handshake) run(ctx context.Context) (*Result, error) {
	log := h.x.log
	if err := h.random(h.nonce[:]); err != nil {
		return nil, h.fail("entropy failure", err)
	}
	log.Debugf("DC %d: starting key exchange (temporary = %v)", h.x.cfg.DC, h.x.cfg.ExpiresIn > 0)

	// Step 1: req_pq_multi.
	resp, err := h.roundTrip(ctx, &mt.ReqPQMulti{Nonce: h.nonce})
	if err != nil {
		return nil, err
	}
	resPQ, ok := resp.(*mt.ResPQ)
	if !ok {
		return nil, h.fail(fmt.Sprintf("expected resPQ, got %s", tl.TypeName(resp)), nil)
	}
	if resPQ.Nonce != h.nonce {
		return nil, h.fail("nonce mismatch in resPQ", nil)
	}
	h.serverNonce = resPQ.ServerNonce
	h.fps = resPQ.ServerPublicKeyFingerprints

	fps := make([]uint64, len(h.fps))
	for i, fp := range h.fps {
		fps[i] = uint64(fp)
	}
	key, ok := h.x.keys.Find(fps)
	if !ok {
		return nil, h.fail("no known server public key", nil)
	}
	log.Debugf("DC %d: using server key %s (old = %v)", h.x.cfg.DC, key, key.Old)

	// Step 2: factorize pq.
	h.state = StateDecomposePQ
	if len(resPQ.PQ) > 8 {
		return nil, h.fail("pq is wider than 64 bits", nil)
	}
	var pqBuf [8]byte
	copy(pqBuf[8-len(resPQ.PQ):], resPQ.PQ)
	p, q, err := pq.Factorize(binary.BigEndian.Uint64(pqBuf[:]))
	if err != nil {
		return nil, h.fail("failed to factorize pq", err)
	}

	// Step 3: req_DH_params.
	h.state = StateRequestDHParams
	if err := h.random(h.newNonce[:]); err != nil {
		return nil, h.fail("entropy failure", err)
	}
	inner := &mt.PQInnerData{
		PQ:          resPQ.PQ,
		P:           trimmed(p),
		Q:           trimmed(q),
		Nonce:       h.nonce,
		ServerNonce: h.serverNonce,
		NewNonce:    h.newNonce,
		DC:          h.x.dcID(),
		ExpiresIn:   int32(h.x.cfg.ExpiresIn / time.Second),
	}
	innerBytes, err := tl.Encode(inner)
	if err != nil {
		return nil, h.fail("failed to encode p_q_inner_data", err)
	}
	encrypted, err := key.Encrypt(h.x.cfg.Rand, innerBytes)
	if err != nil {
		return nil, h.fail("RSA encryption failed", err)
	}
	resp, err = h.roundTrip(ctx, &mt.ReqDHParams{
		Nonce:                h.nonce,
		ServerNonce:          h.serverNonce,
		P:                    inner.P,
		Q:                    inner.Q,
		PublicKeyFingerprint: int64(key.Fingerprint),
		EncryptedData:        encrypted,
	})
	if err != nil {
		return nil, err
	}

	// Step 4: server_DH_params_ok.
	h.state = StateVerifyDH
	params, ok := resp.(*mt.ServerDHParamsOk)
	if !ok {
		return nil, h.fail(fmt.Sprintf("expected server_DH_params_ok, got %s", tl.TypeName(resp)), nil)
	}
	if params.Nonce != h.nonce || params.ServerNonce != h.serverNonce {
		return nil, h.fail("nonce mismatch in server_DH_params", nil)
	}
	if len(params.EncryptedAnswer)%16 != 0 {
		return nil, h.fail("encrypted answer is not block aligned", nil)
	}
	tmpKey, tmpIV := kdf.NonceKeyIV(h.serverNonce[:], h.newNonce[:])
	dhInner, err := h.decryptAnswer(tmpKey, tmpIV, params.EncryptedAnswer)
	if err != nil {
		return nil, err
	}

	dhPrime := new(big.Int).SetBytes(dhInner.DHPrime)
	if err := CheckDHParams(dhPrime, dhInner.G); err != nil {
		return nil, h.fail("invalid DH parameters", err)
	}
	g := big.NewInt(int64(dhInner.G))
	gA := new(big.Int).SetBytes(dhInner.GA)
	if err := kdf.CheckDHRange(g, dhPrime, false); err != nil {
		return nil, h.fail("g out of range", err)
	}
	if err := kdf.CheckDHRange(gA, dhPrime, true); err != nil {
		return nil, h.fail("g_a out of range", err)
	}
	timeOffset := int64(dhInner.ServerTime) - h.x.cfg.Now().Unix()
	salt := int64(binary.LittleEndian.Uint64(h.newNonce[:8]) ^ binary.LittleEndian.Uint64(h.serverNonce[:8]))

	// Step 5 and 6: set_client_DH_params until dh_gen_ok.
	h.state = StateComputeDHGen
	var retryID int64
	for i := 0; i < maxDHRetries; i++ {
		authKey, auxHash, answer, err := h.clientDH(ctx, tmpKey, tmpIV, dhPrime, g, gA, retryID)
		if err != nil {
			return nil, err
		}
		switch answer.ID {
		case mt.DHGenOkID:
			if !bytes.Equal(answer.NewNonceHash[:], h.newNonceHash(1, auxHash)) {
				return nil, h.fail("new_nonce_hash1 mismatch", nil)
			}
			k, err := wire.NewAuthKey(authKey)
			if err != nil {
				return nil, h.fail("invalid auth key", err)
			}
			if h.x.cfg.ExpiresIn > 0 {
				k.ExpiresAt = h.x.cfg.Now().Add(h.x.cfg.ExpiresIn)
			}
			h.state = StateConfirmed
			log.Infof("DC %d: key exchange complete, key id %016x", h.x.cfg.DC, k.IDUint64())
			return &Result{Key: k, ServerSalt: salt, TimeOffset: timeOffset}, nil
		case mt.DHGenRetryID:
			if !bytes.Equal(answer.NewNonceHash[:], h.newNonceHash(2, auxHash)) {
				return nil, h.fail("new_nonce_hash2 mismatch", nil)
			}
			retryID = int64(binary.LittleEndian.Uint64(auxHash))
			log.Debugf("DC %d: server asked to retry DH", h.x.cfg.DC)
		default:
			return nil, h.fail("server answered dh_gen_fail", nil)
		}
	}
	return nil, h.fail("too many dh_gen_retry answers", nil)
}

func (h *handshake) decryptAnswer(key, iv, encrypted []byte) (*mt.ServerDHInnerData, error) {
	pt, err := ige.Decrypt(key, iv, encrypted)
	if err != nil {
		return nil, h.fail("failed to decrypt answer", err)
	}
	if len(pt) < 20 {
		return nil, h.fail("answer too short", nil)
	}
	d := tl.NewDecoder(mt.Registry, pt[20:])
	inner := new(mt.ServerDHInnerData)
	if err := d.DecodeBoxed(inner); err != nil {
		return nil, h.fail("failed to decode server_DH_inner_data", err)
	}
	if d.Remaining() >= 16 {
		return nil, h.fail("answer padding too long", nil)
	}
	consumed := len(pt) - 20 - d.Remaining()
	if !bytes.Equal(pt[:20], kdf.SHA1(pt[20:20+consumed])) {
		return nil, h.fail("answer hash mismatch", nil)
	}
	if inner.Nonce != h.nonce || inner.ServerNonce != h.serverNonce {
		return nil, h.fail("nonce mismatch in server_DH_inner_data", nil)
	}
	return inner, nil
}

func (h *handshake) clientDH(ctx context.Context, tmpKey, tmpIV []byte, dhPrime, g, gA *big.Int, retryID int64) (authKey, auxHash []byte, answer *mt.DHGenResult, err error) {
	var bBytes [256]byte
	if err := h.random(bBytes[:]); err != nil {
		return nil, nil, nil, h.fail("entropy failure", err)
	}
	b := new(big.Int).SetBytes(bBytes[:])
	gB := kdf.ModExp(g, b, dhPrime)
	if err := kdf.CheckDHRange(gB, dhPrime, true); err != nil {
		return nil, nil, nil, h.fail("g_b out of range", err)
	}
	authKey = make([]byte, wire.AuthKeySize)
	kdf.ModExp(gA, b, dhPrime).FillBytes(authKey)
	auxHash = kdf.SHA1(authKey)[:8]

	inner, err := tl.Encode(&mt.ClientDHInnerData{
		Nonce:       h.nonce,
		ServerNonce: h.serverNonce,
		RetryID:     retryID,
		GB:          gB.Bytes(),
	})
	if err != nil {
		return nil, nil, nil, h.fail("failed to encode client_DH_inner_data", err)
	}
	data := append(kdf.SHA1(inner), inner...)
	if rem := len(data) % 16; rem != 0 {
		pad := make([]byte, 16-rem)
		if err := h.random(pad); err != nil {
			return nil, nil, nil, h.fail("entropy failure", err)
		}
		data = append(data, pad...)
	}
	encrypted, err := ige.Encrypt(tmpKey, tmpIV, data)
	if err != nil {
		return nil, nil, nil, h.fail("failed to encrypt client_DH_inner_data", err)
	}

	resp, err := h.roundTrip(ctx, &mt.SetClientDHParams{
		Nonce:         h.nonce,
		ServerNonce:   h.serverNonce,
		EncryptedData: encrypted,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	answer, ok := resp.(*mt.DHGenResult)
	if !ok {
		return nil, nil, nil, h.fail(fmt.Sprintf("expected set_client_DH_params_answer, got %s", tl.TypeName(resp)), nil)
	}
	if answer.Nonce != h.nonce || answer.ServerNonce != h.serverNonce {
		return nil, nil, nil, h.fail("nonce mismatch in dh_gen answer", nil)
	}
	return authKey, auxHash, answer, nil
}

func (h *handshake) newNonceHash(n byte, auxHash []byte) []byte {
	return kdf.SHA1(h.newNonce[:], []byte{n}, auxHash)[4:20]
}

func trimmed(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return bytes.TrimLeft(b[:], "\x00")
}
