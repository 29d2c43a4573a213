package session

import (
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"

	"github.com/pgsqlite-go/pgsqlite/pkg/util/pgerror"
)

// PreparedStatement is a parsed statement whose parameter and result types
// have been resolved, grounded on the teacher's pkg/pgwire/prepared.go
// PreparedStatement but decoupled from database/sql.ColumnType.
// ResultOIDs and ResultNames are not filled in by anything in this
// module; pkg/pgwire works out result OIDs from each executed result.
type PreparedStatement struct {
	Name        string
	Query       string
	ParamOIDs   []uint32
	ResultOIDs  []uint32
	ResultNames []string

	createdAt time.Time
}

// CachedResult holds a fully-materialized result set for a portal so that
// Execute messages with a non-zero row limit can resume mid-stream,
// grounded on original_source/src/session/portal_manager.rs's
// CachedQueryResult.
type CachedResult struct {
	Columns    []string
	Rows       [][]any
	CommandTag string
}

// ExecutionState tracks how much of a portal's result has already been
// sent to the client, mirroring PortalExecutionState in
// original_source/src/session/portal_manager.rs.
type ExecutionState struct {
	RowOffset  int
	IsComplete bool
	Cached     *CachedResult
}

// Portal is a prepared statement bound to concrete parameter values and
// result/parameter formats, ready for Execute.
type Portal struct {
	Name      string
	Stmt      *PreparedStatement
	Args      []any
	ParamFmts []int16
	ResultFmt []int16

	createdAt    time.Time
	lastAccessed time.Time
	state        ExecutionState
}

// PortalManager owns the prepared-statement and portal namespaces for one
// client connection, generalizing the teacher's two bare maps
// (ClientConn.prepStmts/portals) into a single type with LRU eviction once
// a configurable portal limit is hit, per
// original_source/src/session/portal_manager.rs's PortalManager.
type PortalManager struct {
	maxPortals    int
	maxStatements int
	stmts         map[string]*PreparedStatement
	portals       map[string]*Portal
}

// NewPortalManager returns a manager allowing at most maxPortals
// concurrently open portals; 0 means unlimited.
func NewPortalManager(maxPortals int) *PortalManager {
	return &PortalManager{
		maxPortals: maxPortals,
		stmts:      map[string]*PreparedStatement{},
		portals:    map[string]*Portal{},
	}
}

// SetMaxStatements bounds the number of concurrently prepared statements
// (the statement pool SPEC_FULL §3's -statement-pool-size flag sizes),
// evicting the oldest prepared statement past this cap rather than
// rejecting the new Parse outright, mirroring AddPortal's LRU eviction.
func (m *PortalManager) SetMaxStatements(n int) {
	m.maxStatements = n
}

// AddStatement registers a new prepared statement. It is illegal to call
// this when a statement with that name already exists (even the
// anonymous, empty-named statement), matching PostgreSQL's own protocol
// rule that re-parsing a name must be preceded by a Close.
func (m *PortalManager) AddStatement(name, query string, paramOIDs []uint32) (*PreparedStatement, error) {
	if _, ok := m.stmts[name]; ok {
		return nil, pgerror.New(pgerrcode.DuplicatePreparedStatement, fmt.Sprintf("prepared statement %q already exists", name))
	}
	if m.maxStatements > 0 && len(m.stmts) >= m.maxStatements {
		if oldest := m.findOldestStatement(); oldest != "" {
			delete(m.stmts, oldest)
		}
	}
	stmt := &PreparedStatement{Name: name, Query: query, ParamOIDs: paramOIDs, createdAt: time.Now()}
	m.stmts[name] = stmt
	return stmt, nil
}

func (m *PortalManager) findOldestStatement() string {
	var oldestName string
	var oldestTime time.Time
	for name, s := range m.stmts {
		if oldestName == "" || s.createdAt.Before(oldestTime) {
			oldestName = name
			oldestTime = s.createdAt
		}
	}
	return oldestName
}

// Statement looks up a prepared statement by name.
func (m *PortalManager) Statement(name string) (*PreparedStatement, bool) {
	s, ok := m.stmts[name]
	return s, ok
}

// CloseStatement removes a prepared statement, silently succeeding if it
// doesn't exist (Close is idempotent in the PostgreSQL protocol).
func (m *PortalManager) CloseStatement(name string) {
	delete(m.stmts, name)
}

// AddPortal binds a prepared statement into a new portal, evicting the
// least-recently-accessed existing portal first if the manager is at
// capacity.
func (m *PortalManager) AddPortal(name string, stmt *PreparedStatement, args []any, paramFmts, resultFmt []int16) error {
	if _, ok := m.portals[name]; ok {
		return fmt.Errorf("pgsqlite: portal %q already exists", name)
	}
	if m.maxPortals > 0 && len(m.portals) >= m.maxPortals {
		if lru := m.findLRU(); lru != "" {
			delete(m.portals, lru)
		}
	}
	m.portals[name] = &Portal{
		Name:         name,
		Stmt:         stmt,
		Args:         args,
		ParamFmts:    paramFmts,
		ResultFmt:    resultFmt,
		createdAt:    time.Now(),
		lastAccessed: time.Now(),
	}
	return nil
}

// Portal looks up a portal by name, refreshing its last-accessed time for
// LRU purposes.
func (m *PortalManager) Portal(name string) (*Portal, bool) {
	p, ok := m.portals[name]
	if ok {
		p.lastAccessed = time.Now()
	}
	return p, ok
}

// State returns the portal's current partial-fetch execution state (row
// offset, completion flag, and cached result set, if Execute has already
// populated one), per spec.md §3's Portal data model.
func (p *Portal) State() ExecutionState {
	return p.state
}

// UpdateState records how much of a portal's result has been delivered.
func (m *PortalManager) UpdateState(name string, offset int, complete bool, cached *CachedResult) error {
	p, ok := m.portals[name]
	if !ok {
		return fmt.Errorf("pgsqlite: unknown portal %q", name)
	}
	p.state.RowOffset = offset
	p.state.IsComplete = complete
	if cached != nil {
		p.state.Cached = cached
	}
	return nil
}

// ClosePortal removes a portal, silently succeeding if it doesn't exist.
func (m *PortalManager) ClosePortal(name string) {
	delete(m.portals, name)
}

// CloseAll discards every statement and portal, used by Session.Close
// when the client disconnects.
func (m *PortalManager) CloseAll() {
	m.stmts = map[string]*PreparedStatement{}
	m.portals = map[string]*Portal{}
}

// PortalCount reports the number of currently open portals.
func (m *PortalManager) PortalCount() int { return len(m.portals) }

// CleanupStale removes portals untouched for longer than maxAge, returning
// how many were evicted. Intended to run on a periodic sweep so a client
// that leaks portals (declares without ever closing) doesn't grow this
// manager unbounded over a long-lived connection.
func (m *PortalManager) CleanupStale(maxAge time.Duration) int {
	now := time.Now()
	var stale []string
	for name, p := range m.portals {
		if now.Sub(p.lastAccessed) > maxAge {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		delete(m.portals, name)
	}
	return len(stale)
}

func (m *PortalManager) findLRU() string {
	var lruName string
	var lruTime time.Time
	for name, p := range m.portals {
		if lruName == "" || p.lastAccessed.Before(lruTime) {
			lruName = name
			lruTime = p.lastAccessed
		}
	}
	return lruName
}
