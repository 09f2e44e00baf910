// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// aliasedSchemaWikis maps legacy/alternate wiki keys to the schema name
// MediaWiki replicas actually use (§4.5).
var aliasedSchemaWikis = map[string]string{
	"be-taraskwiki":  "be_x_oldwiki",
	"be-x-oldwiki":   "be_x_oldwiki",
	"be_taraskwiki":  "be_x_oldwiki",
	"be_x_oldwiki":   "be_x_oldwiki",
}

// dbSlot is one credential slot in the pool; mu is the try-lock that
// AcquireDBSlot contends on.
type dbSlot struct {
	mu   sync.Mutex
	cred MySQLCredential
}

// DBSlot is a handle to an acquired, uncontended credential slot. Callers
// must call Release when done.
type DBSlot struct {
	state *AppState
	index int
}

// Release returns the slot to the pool.
func (s *DBSlot) Release() {
	s.state.slots[s.index].mu.Unlock()
}

// AppState owns the database credential pool, the cached site matrix, the
// tool-database connection, and cooperative shutdown bookkeeping (§4.5).
// It is shared by pointer; every mutable field is behind its own lock so
// concurrent source/post-processing goroutines can use it safely (§9
// "Cyclic ownership").
type AppState struct {
	cfg   *Config
	slots []*dbSlot

	toolDBOnce sync.Once
	toolDB     *sql.DB
	toolDBErr  error

	dbCacheMu sync.Mutex
	dbCache   map[string]*sql.DB

	siteMatrix     *SiteMatrix
	siteMatrixOnce sync.Once

	bootstrap SiteMatrixBootstrap
	cachePath string
	cacheMaxAge time.Duration

	shutdownMu     sync.Mutex
	shuttingDown   bool
	threadsRunning int

	metrics *Metrics
	logger  *log.Logger
}

// NewAppState builds an AppState from cfg. bootstrap fetches the site
// matrix on a cold start (no cache present, or cache too old); it is
// injected because the bootstrap HTTP call itself is out of scope (§1).
// A nil metrics disables instrumentation.
func NewAppState(cfg *Config, bootstrap SiteMatrixBootstrap, metrics *Metrics, logger *log.Logger) *AppState {
	creds := cfg.credentials()
	slots := make([]*dbSlot, len(creds))
	for i, c := range creds {
		slots[i] = &dbSlot{cred: c}
	}
	if logger == nil {
		logger = log.Default()
	}
	maxAge := time.Duration(cfg.SiteMatrixMaxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &AppState{
		cfg:         cfg,
		slots:       slots,
		dbCache:     make(map[string]*sql.DB),
		bootstrap:   bootstrap,
		cachePath:   cfg.SiteMatrixCachePath,
		cacheMaxAge: maxAge,
		metrics:     metrics,
		logger:      logger,
	}
}

// AcquireDBSlot picks a uniformly random slot and retries until an
// uncontended one is obtained, sleeping 500ms after 2*pool_size failed
// attempts (§4.5).
func (s *AppState) AcquireDBSlot(ctx context.Context) (*DBSlot, error) {
	start := time.Now()
	poolSize := len(s.slots)
	if poolSize == 0 {
		return nil, newConfigError("petscan: no database credential slots configured")
	}
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		i := rand.Intn(poolSize)
		if s.slots[i].mu.TryLock() {
			s.metrics.observePoolSlotWait(time.Since(start))
			return &DBSlot{state: s, index: i}, nil
		}
		attempts++
		s.metrics.incPoolRetry()
		if attempts >= 2*poolSize {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			attempts = 0
		}
	}
}

// DBHostAndSchema is the resolved host and schema for a wiki database
// connection (§4.5).
type DBHostAndSchema struct {
	Host   string
	Port   uint16
	Schema string
}

// DBHostAndSchemaForWiki derives the replica host and schema for wiki
// (§4.5, §8 scenario 2).
func (s *AppState) DBHostAndSchemaForWiki(wiki string) DBHostAndSchema {
	aliased := wiki
	if a, ok := aliasedSchemaWikis[wiki]; ok {
		aliased = a
	}
	host := s.cfg.Host
	if host != "127.0.0.1" {
		host = aliased + s.cfg.DBServerGroup
	}
	return DBHostAndSchema{Host: host, Port: s.cfg.DBPort, Schema: aliased + "_p"}
}

// dbHostAndSchemaForToolDB resolves the tool-database host/schema and port
// (§4.5: "port defaults to 3308 when the configured host is 127.0.0.1").
func (s *AppState) dbHostAndSchemaForToolDB() DBHostAndSchema {
	host := s.cfg.ToolDBHost
	port := s.cfg.DBPort
	if host == "127.0.0.1" {
		port = toolDBPortOnLoopback
	} else if port == 0 {
		port = defaultDBPort
	}
	return DBHostAndSchema{Host: host, Port: port, Schema: s.cfg.ToolDBSchema}
}

// GetWikiDBConnection connects to wiki using slot's credential, retrying up
// to 15 times with exponential backoff from 100ms to 5000ms (§4.5). On
// success against commonswiki it raises group_concat_max_len.
func (s *AppState) GetWikiDBConnection(ctx context.Context, slot *DBSlot, wiki string) (*sql.DB, error) {
	hs := s.DBHostAndSchemaForWiki(wiki)
	return s.connect(ctx, slot.state.slots[slot.index].cred, hs, wiki == "commonswiki")
}

// QueryWiki is the convenience path most callers use: acquire a slot,
// connect, query, release.
func (s *AppState) QueryWiki(ctx context.Context, wiki, query string, args ...any) (*sql.Rows, error) {
	slot, err := s.AcquireDBSlot(ctx)
	if err != nil {
		return nil, err
	}
	defer slot.Release()

	db, err := s.GetWikiDBConnection(ctx, slot, wiki)
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

// GetToolDBConnection connects to the tool database, used for PSID
// bookkeeping (§4.5, §6).
func (s *AppState) GetToolDBConnection(ctx context.Context) (*sql.DB, error) {
	s.toolDBOnce.Do(func() {
		hs := s.dbHostAndSchemaForToolDB()
		cred := MySQLCredential{User: s.cfg.ToolDBUser, Password: s.cfg.ToolDBPassword}
		s.toolDB, s.toolDBErr = s.connect(ctx, cred, hs, false)
	})
	return s.toolDB, s.toolDBErr
}

func (s *AppState) connect(ctx context.Context, cred MySQLCredential, hs DBHostAndSchema, isCommons bool) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=5s",
		cred.User, cred.Password, hs.Host, hs.Port, hs.Schema)

	s.dbCacheMu.Lock()
	if db, ok := s.dbCache[dsn]; ok {
		s.dbCacheMu.Unlock()
		return db, nil
	}
	s.dbCacheMu.Unlock()

	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second
	const maxAttempts = 15

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.incDBConnectRetry()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		db, err := sql.Open("mysql", dsn)
		if err != nil {
			lastErr = err
			continue
		}
		if err := db.PingContext(ctx); err != nil {
			lastErr = err
			db.Close()
			continue
		}
		if isCommons {
			if _, err := db.ExecContext(ctx, "SET SESSION group_concat_max_len = 1000000000"); err != nil {
				db.Close()
				return nil, newDatabaseError("petscan: setting group_concat_max_len on commonswiki: %w", err)
			}
		}

		s.dbCacheMu.Lock()
		s.dbCache[dsn] = db
		s.dbCacheMu.Unlock()
		return db, nil
	}
	return nil, newDatabaseError("petscan: connecting to %s after %d attempts: %w", hs.Host, maxAttempts, lastErr)
}

// GetQueryFromPSID reads the saved query string for a permanent search id
// from the tool database's query table.
func (s *AppState) GetQueryFromPSID(ctx context.Context, psid int64) (string, error) {
	db, err := s.GetToolDBConnection(ctx)
	if err != nil {
		return "", err
	}
	var query string
	row := db.QueryRowContext(ctx, "SELECT querystring FROM query WHERE id=?", psid)
	if err := row.Scan(&query); err != nil {
		return "", newDatabaseError("petscan: loading query for psid %d: %w", psid, err)
	}
	return query, nil
}

// LogQueryStart records that a query has begun executing, returning the
// inserted row's id so LogQueryEnd can remove it again.
func (s *AppState) LogQueryStart(ctx context.Context, querystring string) (int64, error) {
	db, err := s.GetToolDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, "INSERT INTO started_queries (querystring, created, process_id) VALUES (?, NOW(), ?)", querystring, os.Getpid())
	if err != nil {
		return 0, newDatabaseError("petscan: logging query start: %w", err)
	}
	return res.LastInsertId()
}

// LogQueryEnd removes the started_queries row written by LogQueryStart.
// Failures are logged, not returned: a missed cleanup must never fail the
// run that produced it.
func (s *AppState) LogQueryEnd(ctx context.Context, id int64) {
	db, err := s.GetToolDBConnection(ctx)
	if err != nil {
		return
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM started_queries WHERE id=?", id); err != nil {
		s.logger.Printf("petscan: failed to clear started_queries row %d: %v", id, err)
	}
}

// GetOrCreatePSIDForQuery returns the permanent search id for querystring,
// inserting a new row if one does not already exist.
func (s *AppState) GetOrCreatePSIDForQuery(ctx context.Context, querystring string) (int64, error) {
	db, err := s.GetToolDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	row := db.QueryRowContext(ctx, "SELECT id FROM query WHERE querystring=?", querystring)
	switch err := row.Scan(&id); err {
	case nil:
		return id, nil
	case sql.ErrNoRows:
		res, err := db.ExecContext(ctx, "INSERT INTO query (querystring, created) VALUES (?, NOW())", querystring)
		if err != nil {
			return 0, newDatabaseError("petscan: creating psid for query: %w", err)
		}
		return res.LastInsertId()
	default:
		return 0, newDatabaseError("petscan: looking up psid for query: %w", err)
	}
}

// ModifyThreadsRunning adjusts the active-goroutine counter by delta under
// the shutdown mutex (§5 "Shared-resource policy", §9 "Cooperative
// shutdown").
func (s *AppState) ModifyThreadsRunning(delta int) {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	s.threadsRunning += delta
}

// TryShutdown sets the shutting-down flag and reports whether the process
// may exit immediately (no goroutines outstanding).
func (s *AppState) TryShutdown() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	s.shuttingDown = true
	return s.threadsRunning == 0
}

// IsShuttingDown reports the shutdown flag without modifying it.
func (s *AppState) IsShuttingDown() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.shuttingDown
}
