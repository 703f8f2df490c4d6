// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mtproto/core/crypto/ctr"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
)

const obfuscatedHeaderSize = 64

var (
	errNotInitialized = errors.New("transport: obfuscated codec used before Tag")
	errSecretSize     = errors.New("transport: proxy secret must be 16 bytes")
)

// forbidden first words of the obfuscation header, which a server would
// take for another protocol.
var forbiddenPrefixes = []uint32{
	0x44414548, // HEAD
	0x54534f50, // POST
	0x20544547, // GET
	0x4954504f, // OPTI
	0xdddddddd,
	0xeeeeeeee,
	0x02010316,
}

// ProxyInfo describes the MTProxy a connection goes through.
type ProxyInfo struct {
	DC     int
	Secret []byte
	Test   bool
	Media  bool
}

// Obfuscated wraps another codec and encrypts the whole stream with
// AES-CTR keyed from a random 64 byte header.
type Obfuscated struct {
	Inner Codec
	Proxy *ProxyInfo
	Rand  io.Reader

	enc *ctr.Stream
	dec *ctr.Stream
}

// NewObfuscated returns an Obfuscated codec around inner.
func NewObfuscated(inner Codec, p *ProxyInfo) *Obfuscated {
	return &Obfuscated{Inner: inner, Proxy: p}
}

func (o *Obfuscated) header() ([]byte, error) {
	r := o.Rand
	if r == nil {
		r = rand.Reader
	}
	random := make([]byte, obfuscatedHeaderSize)
	for {
		if _, err := io.ReadFull(r, random); err != nil {
			return nil, err
		}
		if random[0] == 0xef {
			continue
		}
		first := binary.LittleEndian.Uint32(random)
		ok := true
		for _, v := range forbiddenPrefixes {
			if first == v {
				ok = false
				break
			}
		}
		if ok && binary.LittleEndian.Uint32(random[4:]) != 0 {
			return random, nil
		}
	}
}

// Tag builds the obfuscation header and initializes both keystreams.
func (o *Obfuscated) Tag() ([]byte, error) {
	if o.Proxy != nil && len(o.Proxy.Secret) != 16 {
		return nil, errSecretSize
	}
	random, err := o.header()
	if err != nil {
		return nil, err
	}

	innerTag, err := o.Inner.Tag()
	if err != nil {
		return nil, err
	}
	if len(innerTag) != 4 {
		b := innerTag[0]
		innerTag = []byte{b, b, b, b}
	}
	copy(random[56:], innerTag)

	if o.Proxy != nil {
		dc := o.Proxy.DC
		if o.Proxy.Test {
			dc += 10000
		}
		if o.Proxy.Media {
			dc = -dc
		}
		binary.LittleEndian.PutUint16(random[60:], uint16(int16(dc)))
	}

	rev := make([]byte, 48)
	for i := range rev {
		rev[i] = random[55-i]
	}
	encKey, encIV := append([]byte{}, random[8:40]...), random[40:56]
	decKey, decIV := rev[:32], rev[32:48]
	if o.Proxy != nil {
		encKey = kdf.SHA256(encKey, o.Proxy.Secret)
		decKey = kdf.SHA256(decKey, o.Proxy.Secret)
	}

	if o.enc, err = ctr.New(encKey, encIV); err != nil {
		return nil, err
	}
	if o.dec, err = ctr.New(decKey, decIV); err != nil {
		return nil, err
	}

	encrypted := o.enc.Process(random)
	copy(random[56:], encrypted[56:])
	return random, nil
}

func (o *Obfuscated) WritePacket(w io.Writer, packet []byte) error {
	if o.enc == nil {
		return errNotInitialized
	}
	var buf bytes.Buffer
	if err := o.Inner.WritePacket(&buf, packet); err != nil {
		return err
	}
	b := buf.Bytes()
	o.enc.XORKeyStream(b, b)
	_, err := w.Write(b)
	return err
}

func (o *Obfuscated) ReadPacket(r io.Reader) ([]byte, error) {
	if o.dec == nil {
		return nil, errNotInitialized
	}
	return o.Inner.ReadPacket(&ctrReader{r: r, s: o.dec})
}

type ctrReader struct {
	r io.Reader
	s *ctr.Stream
}

func (c *ctrReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.s.XORKeyStream(p[:n], p[:n])
	return n, err
}
