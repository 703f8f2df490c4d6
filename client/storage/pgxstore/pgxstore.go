// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package pgxstore implements the client storage on PostgreSQL.  Several
// sessions may share one database; rows are keyed by session name.
package pgxstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/log"
)

const (
	pgxSchemaVersion = 0
	minConns         = 2

	tagAuthKeyGet     = "auth_key_get"
	tagAuthKeySet     = "auth_key_set"
	tagAuthKeyDelete  = "auth_key_delete"
	tagTempKeyGet     = "temp_key_get"
	tagTempKeySet     = "temp_key_set"
	tagTempKeyDelete  = "temp_key_delete"
	tagValueGet       = "value_get"
	tagValueSet       = "value_set"
	tagValueDelete    = "value_delete"
	tagMetadataGet    = "metadata_get"
	tagMetadataInsert = "metadata_insert"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS mtproto_metadata (
		schema_version smallint NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mtproto_auth_keys (
		session text NOT NULL,
		dc integer NOT NULL,
		key bytea NOT NULL,
		PRIMARY KEY (session, dc)
	)`,
	`CREATE TABLE IF NOT EXISTS mtproto_temp_auth_keys (
		session text NOT NULL,
		dc integer NOT NULL,
		idx integer NOT NULL,
		key bytea NOT NULL,
		expires_at bigint NOT NULL,
		PRIMARY KEY (session, dc, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS mtproto_kv (
		session text NOT NULL,
		key text NOT NULL,
		value bytea NOT NULL,
		PRIMARY KEY (session, key)
	)`,
}

var statements = []struct {
	tag, query string
}{
	{tagMetadataGet, "SELECT schema_version FROM mtproto_metadata LIMIT 1"},
	{tagMetadataInsert, "INSERT INTO mtproto_metadata (schema_version) VALUES ($1)"},
	{tagAuthKeyGet, "SELECT key FROM mtproto_auth_keys WHERE session = $1 AND dc = $2"},
	{tagAuthKeySet, "INSERT INTO mtproto_auth_keys (session, dc, key) VALUES ($1, $2, $3) " +
		"ON CONFLICT (session, dc) DO UPDATE SET key = EXCLUDED.key"},
	{tagAuthKeyDelete, "DELETE FROM mtproto_auth_keys WHERE session = $1 AND dc = $2"},
	{tagTempKeyGet, "SELECT key, expires_at FROM mtproto_temp_auth_keys WHERE session = $1 AND dc = $2 AND idx = $3"},
	{tagTempKeySet, "INSERT INTO mtproto_temp_auth_keys (session, dc, idx, key, expires_at) VALUES ($1, $2, $3, $4, $5) " +
		"ON CONFLICT (session, dc, idx) DO UPDATE SET key = EXCLUDED.key, expires_at = EXCLUDED.expires_at"},
	{tagTempKeyDelete, "DELETE FROM mtproto_temp_auth_keys WHERE session = $1 AND dc = $2 AND idx = $3"},
	{tagValueGet, "SELECT value FROM mtproto_kv WHERE session = $1 AND key = $2"},
	{tagValueSet, "INSERT INTO mtproto_kv (session, key, value) VALUES ($1, $2, $3) " +
		"ON CONFLICT (session, key) DO UPDATE SET value = EXCLUDED.value"},
	{tagValueDelete, "DELETE FROM mtproto_kv WHERE session = $1 AND key = $2"},
}

// Config configures a Store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// Session names the rows owned by this client.
	Session string

	// MaxConnections bounds the pool, at least 2.
	MaxConnections int

	// LogLevel is the core/log level name the pgx logger is mapped from.
	LogLevel string
}

// Store is a PostgreSQL backed storage.Storage.
type Store struct {
	pool    *pgx.ConnPool
	log     *logging.Logger
	session string
}

// New connects to the database, creates the schema if missing and
// prepares all statements.
func New(cfg *Config, logBackend *log.Backend) (*Store, error) {
	s := &Store{
		log:     logBackend.GetLogger("storage/pgx"),
		session: cfg.Session,
	}

	connCfg, err := pgx.ParseConnectionString(cfg.DSN)
	if err != nil {
		return nil, err
	}
	connCfg.Logger = s
	connCfg.LogLevel = toPgxLogLevel(cfg.LogLevel)

	numConns := cfg.MaxConnections
	if numConns < minConns {
		numConns = minConns
	}

	isOk := false
	defer func() {
		if !isOk && s.pool != nil {
			s.pool.Close()
		}
	}()

	if s.pool, err = pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     connCfg,
		MaxConnections: numConns,
	}); err != nil {
		return nil, err
	}
	for _, q := range schema {
		if _, err = s.pool.Exec(q); err != nil {
			return nil, fmt.Errorf("storage/pgx: failed to create schema: %v", err)
		}
	}
	for _, v := range statements {
		if _, err = s.pool.Prepare(v.tag, v.query); err != nil {
			s.log.Errorf("Failed to prepare statement %v -> %v: %v", v.tag, v.query, err)
			return nil, err
		}
	}
	if err = s.initMetadata(); err != nil {
		return nil, err
	}

	isOk = true
	return s, nil
}

func (s *Store) initMetadata() error {
	var version int16
	err := s.pool.QueryRow(tagMetadataGet).Scan(&version)
	switch {
	case err == pgx.ErrNoRows:
		_, err = s.pool.Exec(tagMetadataInsert, int16(pgxSchemaVersion))
		return err
	case err != nil:
		return fmt.Errorf("storage/pgx: metadata query failed: %v", err)
	case version != pgxSchemaVersion:
		return fmt.Errorf("storage/pgx: invalid schema version: %v", version)
	}
	return nil
}

// Log implements pgx.Logger.
func (s *Store) Log(level pgx.LogLevel, msg string, data map[string]interface{}) {
	if level == pgx.LogLevelNone {
		return
	}

	argVec := make([]interface{}, 0, 1+len(data))
	argVec = append(argVec, msg+" ")
	for k, v := range data {
		argVec = append(argVec, fmt.Sprintf("%s=%v ", k, v))
	}
	mStr := strings.TrimSpace(fmt.Sprint(argVec...))

	switch level {
	case pgx.LogLevelDebug:
		s.log.Debug(mStr)
	case pgx.LogLevelInfo:
		s.log.Info(mStr)
	case pgx.LogLevelWarn:
		s.log.Warning(mStr)
	case pgx.LogLevelError:
		s.log.Error(mStr)
	}
}

func (s *Store) queryBytes(tag string, args ...interface{}) ([]byte, error) {
	var b []byte
	err := s.pool.QueryRow(tag, args...).Scan(&b)
	if err == pgx.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return b, err
}

func (s *Store) AuthKey(dc int) ([]byte, error) {
	return s.queryBytes(tagAuthKeyGet, s.session, int32(dc))
}

func (s *Store) SetAuthKey(dc int, key []byte) error {
	var err error
	if key == nil {
		_, err = s.pool.Exec(tagAuthKeyDelete, s.session, int32(dc))
	} else {
		_, err = s.pool.Exec(tagAuthKeySet, s.session, int32(dc), key)
	}
	return err
}

func (s *Store) TempAuthKey(dc, idx int, now time.Time) ([]byte, error) {
	r := storage.TempKeyRecord{}
	err := s.pool.QueryRow(tagTempKeyGet, s.session, int32(dc), int32(idx)).Scan(&r.Key, &r.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !r.Valid(now) {
		return nil, storage.ErrNotFound
	}
	return r.Key, nil
}

func (s *Store) SetTempAuthKey(dc, idx int, key []byte, expiresAt time.Time) error {
	var err error
	if key == nil {
		_, err = s.pool.Exec(tagTempKeyDelete, s.session, int32(dc), int32(idx))
	} else {
		_, err = s.pool.Exec(tagTempKeySet, s.session, int32(dc), int32(idx), key, expiresAt.Unix())
	}
	return err
}

func (s *Store) Get(key string) ([]byte, error) {
	return s.queryBytes(tagValueGet, s.session, key)
}

func (s *Store) Set(key string, value []byte) error {
	_, err := s.pool.Exec(tagValueSet, s.session, key, value)
	return err
}

func (s *Store) Delete(key string) error {
	_, err := s.pool.Exec(tagValueDelete, s.session, key)
	return err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func toPgxLogLevel(cfgLevel string) pgx.LogLevel {
	switch cfgLevel {
	case "ERROR":
		return pgx.LogLevelError
	case "DEBUG":
		return pgx.LogLevelDebug
	default:
		// pgx.LogLevelInfo logs query arguments, auth keys included.
		return pgx.LogLevelWarn
	}
}
