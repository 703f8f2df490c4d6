// SPDX-FileCopyrightText: Copyright (C) 2018  Yawning Angel, David Stainton.
// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the configuration for the MTProto client.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"

	"github.com/katzenpost/mtproto/internal/proxy"
)

const (
	defaultLogLevel = "NOTICE"

	defaultSessionName    = "default"
	defaultStorageBackend = BackendMemory

	defaultPingInterval         = 60
	defaultAckInterval          = 30
	defaultContainerDelay       = 2
	defaultFloodWaitMax         = 10
	defaultInternalErrorRetries = 5
	defaultHandshakeAttempts    = 3
	defaultHandshakeTimeout     = 15
	defaultDialTimeout          = 30
	defaultTempKeyLifetime      = 24 * 60 * 60

	TransportAbridged     = "abridged"
	TransportIntermediate = "intermediate"
	TransportPadded       = "padded"

	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Production and test data center addresses known in advance.  The server
// may hand out others through help.getConfig, which is out of scope here.
var (
	productionDCs = []*DC{
		{ID: 1, Address: "149.154.175.53:443"},
		{ID: 2, Address: "149.154.167.51:443"},
		{ID: 3, Address: "149.154.175.100:443"},
		{ID: 4, Address: "149.154.167.91:443"},
		{ID: 5, Address: "91.108.56.130:443"},
	}
	testDCs = []*DC{
		{ID: 1, Address: "149.154.175.10:443"},
		{ID: 2, Address: "149.154.167.40:443"},
		{ID: 3, Address: "149.154.175.117:443"},
	}
)

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// DC is a data center endpoint.
type DC struct {
	// ID is the data center id.
	ID int

	// Address is the host:port of the endpoint.
	Address string

	// Media marks a media only endpoint.
	Media bool
}

func (d *DC) fixup() error {
	if d.ID <= 0 {
		return fmt.Errorf("config: Network: invalid DC id %d", d.ID)
	}
	host, port, err := net.SplitHostPort(d.Address)
	if err != nil {
		return fmt.Errorf("config: Network: DC %d: %v", d.ID, err)
	}
	if p, err := strconv.ParseUint(port, 10, 16); err != nil || p == 0 {
		return fmt.Errorf("config: Network: DC %d: invalid port '%v'", d.ID, port)
	}
	if net.ParseIP(host) == nil {
		if host, err = idna.Lookup.ToASCII(host); err != nil {
			return fmt.Errorf("config: Network: DC %d: invalid host: %v", d.ID, err)
		}
	}
	d.Address = net.JoinHostPort(host, port)
	return nil
}

// MTProxy is an MTProto proxy.
type MTProxy struct {
	// Address is the host:port of the proxy.
	Address string

	// Secret is the hex encoded proxy secret.  A leading 0xdd byte
	// selects the padded intermediate codec.
	Secret string

	secret []byte
}

// SecretBytes returns the decoded 16 byte secret, without any mode
// prefix.
func (m *MTProxy) SecretBytes() []byte {
	return m.secret
}

// Padded returns true iff the secret requests the padded codec.
func (m *MTProxy) Padded() bool {
	b, _ := hex.DecodeString(m.Secret)
	return len(b) == 17 && b[0] == 0xdd
}

func (m *MTProxy) validate() error {
	b, err := hex.DecodeString(m.Secret)
	if err != nil {
		return fmt.Errorf("config: MTProxy: invalid secret: %v", err)
	}
	switch {
	case len(b) == 16:
		m.secret = b
	case len(b) == 17 && b[0] == 0xdd:
		m.secret = b[1:]
	default:
		return errors.New("config: MTProxy: unsupported secret")
	}
	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return fmt.Errorf("config: MTProxy: %v", err)
	}
	return nil
}

// Network is the data center connectivity configuration.
type Network struct {
	// DCs overrides the built in data center addresses.
	DCs []*DC

	// DefaultDC is the data center used until a migration says otherwise.
	DefaultDC int

	// TestMode selects the test data centers.
	TestMode bool

	// Transport is the packet codec: abridged, intermediate or padded.
	Transport string

	// Obfuscated wraps the codec in the obfuscation layer.
	Obfuscated bool

	// MTProxy routes every connection through an MTProto proxy.
	MTProxy *MTProxy

	// QUIC dials the data center addresses over QUIC.
	QUIC bool

	DisableIPv4 bool
	DisableIPv6 bool

	// UsePFS binds a temporary key to the permanent one on every
	// connection.
	UsePFS bool

	// TempKeyLifetime is the temporary key lifetime in seconds.
	TempKeyLifetime int
}

func (n *Network) validate() error {
	switch strings.ToLower(n.Transport) {
	case "":
		n.Transport = TransportIntermediate
	case TransportAbridged, TransportIntermediate, TransportPadded:
		n.Transport = strings.ToLower(n.Transport)
	default:
		return fmt.Errorf("config: Network: Transport '%v' is invalid", n.Transport)
	}
	if len(n.DCs) == 0 {
		src := productionDCs
		if n.TestMode {
			src = testDCs
		}
		for _, d := range src {
			dc := *d
			n.DCs = append(n.DCs, &dc)
		}
	}
	for _, d := range n.DCs {
		if err := d.fixup(); err != nil {
			return err
		}
	}
	if n.DefaultDC == 0 {
		n.DefaultDC = 2
	}
	if n.Address(n.DefaultDC, false) == "" {
		return fmt.Errorf("config: Network: DefaultDC %d has no address", n.DefaultDC)
	}
	if n.MTProxy != nil {
		if err := n.MTProxy.validate(); err != nil {
			return err
		}
		if n.MTProxy.Padded() {
			n.Transport = TransportPadded
		}
		n.Obfuscated = true
	}
	if n.DisableIPv4 && n.DisableIPv6 {
		return errors.New("config: Network: both IPv4 and IPv6 are disabled")
	}
	if n.TempKeyLifetime == 0 {
		n.TempKeyLifetime = defaultTempKeyLifetime
	}
	return nil
}

// Address returns the endpoint for the given data center, preferring a
// media endpoint when media is set.
func (n *Network) Address(dc int, media bool) string {
	var addr string
	for _, d := range n.DCs {
		if d.ID != dc {
			continue
		}
		if d.Media == media {
			return d.Address
		}
		if addr == "" && !d.Media {
			addr = d.Address
		}
	}
	return addr
}

// Session is the persistent session configuration.
type Session struct {
	// Name identifies the session inside a shared storage backend.
	Name string

	// StorageBackend is one of memory, bolt or postgres.
	StorageBackend string

	// StorageFile is the bolt database file.
	StorageFile string

	// StorageDSN is the PostgreSQL connection string.
	StorageDSN string

	// Passphrase seals the bolt database when set.
	Passphrase string
}

func (s *Session) validate() error {
	if s.Name == "" {
		s.Name = defaultSessionName
	}
	name, err := precis.UsernameCaseMapped.String(s.Name)
	if err != nil {
		return fmt.Errorf("config: Session: invalid Name '%v': %v", s.Name, err)
	}
	s.Name = name

	switch strings.ToLower(s.StorageBackend) {
	case "":
		s.StorageBackend = defaultStorageBackend
	case BackendMemory:
		s.StorageBackend = BackendMemory
	case BackendBolt:
		s.StorageBackend = BackendBolt
		if s.StorageFile == "" {
			return errors.New("config: Session: StorageFile is required by the bolt backend")
		}
	case BackendPostgres:
		s.StorageBackend = BackendPostgres
		if s.StorageDSN == "" {
			return errors.New("config: Session: StorageDSN is required by the postgres backend")
		}
	default:
		return fmt.Errorf("config: Session: StorageBackend '%v' is invalid", s.StorageBackend)
	}
	return nil
}

// Debug is the debug configuration.  Intervals are in seconds unless
// noted otherwise.
type Debug struct {
	// PingInterval is the keepalive period of idle connections.
	PingInterval int

	// AckInterval bounds how long incoming messages stay unacknowledged.
	AckInterval int

	// ContainerDelay is the coalescing window in milliseconds.
	ContainerDelay int

	// ExtraPaddingBlocks bounds the random 16 byte blocks of padding added
	// to each message.  Zero keeps the network default, negative disables.
	ExtraPaddingBlocks int

	// FloodWaitMax is the longest FLOOD_WAIT that is waited out
	// transparently.
	FloodWaitMax int

	// InternalErrorRetries bounds the retries of transient server errors.
	InternalErrorRetries int

	// HandshakeAttempts bounds the auth key exchange restarts.
	HandshakeAttempts int

	// HandshakeTimeout bounds each key exchange round trip.
	HandshakeTimeout int

	// DialTimeout bounds connection establishment.
	DialTimeout int
}

func (d *Debug) fixup() {
	if d.PingInterval == 0 {
		d.PingInterval = defaultPingInterval
	}
	if d.AckInterval == 0 {
		d.AckInterval = defaultAckInterval
	}
	if d.ContainerDelay == 0 {
		d.ContainerDelay = defaultContainerDelay
	}
	if d.FloodWaitMax == 0 {
		d.FloodWaitMax = defaultFloodWaitMax
	}
	if d.InternalErrorRetries == 0 {
		d.InternalErrorRetries = defaultInternalErrorRetries
	}
	if d.HandshakeAttempts == 0 {
		d.HandshakeAttempts = defaultHandshakeAttempts
	}
	if d.HandshakeTimeout == 0 {
		d.HandshakeTimeout = defaultHandshakeTimeout
	}
	if d.DialTimeout == 0 {
		d.DialTimeout = defaultDialTimeout
	}
}

// Seconds converts one of the second valued knobs to a time.Duration.
func Seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// Milliseconds converts ContainerDelay to a time.Duration.
func Milliseconds(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Metrics is the prometheus endpoint configuration.
type Metrics struct {
	// Address is the host:port the metrics are served on.  Empty disables
	// the endpoint.
	Address string
}

// UpstreamProxy is the outgoing connection proxy configuration.
type UpstreamProxy struct {
	// Type is the proxy type (Eg: "none"," socks5").
	Type string

	// Network is the proxy address' network (`unix`, `tcp`).
	Network string

	// Address is the proxy's address.
	Address string

	// User is the optional proxy username.
	User string

	// Password is the optional proxy password.
	Password string
}

func (uCfg *UpstreamProxy) toProxyConfig() (*proxy.Config, error) {
	if uCfg == nil {
		return nil, nil
	}
	cfg := &proxy.Config{
		Type:     uCfg.Type,
		Network:  uCfg.Network,
		Address:  uCfg.Address,
		User:     uCfg.User,
		Password: uCfg.Password,
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Config is the top level client configuration.
type Config struct {
	Logging       *Logging
	UpstreamProxy *UpstreamProxy
	Network       *Network
	Session       *Session
	Debug         *Debug
	Metrics       *Metrics

	upstreamProxy *proxy.Config
}

// UpstreamProxyConfig returns the configured upstream proxy, suitable for
// internal use.  Most people should not use this.
func (c *Config) UpstreamProxyConfig() *proxy.Config {
	return c.upstreamProxy
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if c.Logging == nil {
		l := defaultLogging
		c.Logging = &l
	}
	if c.Network == nil {
		c.Network = &Network{}
	}
	if c.Session == nil {
		c.Session = &Session{}
	}
	if c.Debug == nil {
		c.Debug = &Debug{}
	}
	c.Debug.fixup()
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}

	// Validate/fixup the various sections.
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Network.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	uCfg, err := c.UpstreamProxy.toProxyConfig()
	if err != nil {
		return err
	}
	c.upstreamProxy = uCfg
	if c.Metrics.Address != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			return fmt.Errorf("config: Metrics: %v", err)
		}
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
