package pgwire

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/pgsqlite-go/pgsqlite/pkg/executor"
	"github.com/pgsqlite-go/pgsqlite/pkg/session"
	"github.com/pgsqlite-go/pgsqlite/pkg/util/pgerror"
)

const (
	// PrepareStatementType represents a prepared statement Close/Describe
	// target.
	PrepareStatementType byte = 'S'
	// PreparePortalType represents a portal Close/Describe target.
	PreparePortalType byte = 'P'
)

// ClientConn is one client's connection state: the raw socket, its
// pgproto3 backend codec, and the Session/Executor pair that does the
// actual work. Grounded on the teacher's pkg/pgwire/conn.go ClientConn,
// generalized from bundling a single *db.DB to bundling the full
// Connection-Manager-owned *session.Session (transaction status, caches,
// portal/statement namespaces) and a *executor.Executor in front of it.
type ClientConn struct {
	net.Conn
	backend *pgproto3.Backend

	session *session.Session
	exec    *executor.Executor

	// ignoreUntilSync is set once an Extended Query Protocol message
	// errors; per the protocol, every subsequent message up to and
	// including the next Sync is skipped without execution.
	ignoreUntilSync bool
}

func NewClientConn(conn net.Conn) *ClientConn {
	return &ClientConn{
		Conn:    conn,
		backend: pgproto3.NewBackend(conn, conn),
	}
}

func timer(name string) func() {
	start := time.Now()
	return func() {
		if d := time.Since(start); d.Milliseconds() > 10 {
			fmt.Printf("%s took %v\n", name, d)
		}
	}
}

// readyForQuery reports the session's real transaction status byte,
// replacing the teacher's hardcoded 'I' (pkg/pgwire/conn.go never opened
// an explicit transaction of its own, so it never needed to).
func (conn *ClientConn) readyForQuery() *pgproto3.ReadyForQuery {
	return &pgproto3.ReadyForQuery{TxStatus: byte(conn.session.TxStatus())}
}

func (conn *ClientConn) sendError(err error) error {
	return writeMessages(conn, &pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     codeOrDefault(err),
		Message:  err.Error(),
	})
}

func codeOrDefault(err error) string {
	if code := pgerror.GetPGCode(err); code != "" {
		return code
	}
	return pgerrcode.InternalError
}

// handlePing answers the "--ping" probe some connection poolers issue
// before trusting a backend, carried over from the teacher verbatim.
func (conn *ClientConn) handlePing(msg *pgproto3.Query) (bool, error) {
	if strings.HasPrefix(msg.String, "--") && strings.HasSuffix(strings.TrimSpace(msg.String), "ping") {
		return true, writeMessages(conn,
			&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")},
			conn.readyForQuery())
	}
	return false, nil
}

// handleQuery implements the Simple Query protocol: split the message
// into its constituent statements, route SET/SHOW through the session's
// parameter table, and everything else through the Query Executor,
// wrapping more than one statement in an implicit transaction exactly as
// real PostgreSQL does for a multi-statement simple-query message.
func (conn *ClientConn) handleQuery(ctx context.Context, msg *pgproto3.Query) error {
	defer timer("handleQuery")()

	if handled, err := conn.handlePing(msg); handled || err != nil {
		return err
	}

	stmts := splitStatements(msg.String)
	if len(stmts) == 0 {
		return writeMessages(conn, &pgproto3.EmptyQueryResponse{}, conn.readyForQuery())
	}

	implicitTx := len(stmts) > 1 && !conn.session.InTransaction()
	if implicitTx {
		if err := conn.session.Begin(ctx); err != nil {
			if err := conn.sendError(err); err != nil {
				return err
			}
			return writeMessages(conn, conn.readyForQuery())
		}
	}

	for _, stmt := range stmts {
		if err := conn.execSimple(ctx, stmt); err != nil {
			if err := conn.sendError(err); err != nil {
				return err
			}
			break
		}
	}

	if implicitTx {
		if conn.session.TxStatus() == session.TxActive {
			_ = conn.session.Commit(ctx)
		} else {
			_ = conn.session.Rollback()
		}
	}

	return writeMessages(conn, conn.readyForQuery())
}

// execSimple runs one statement from a simple-query message and writes
// its response, without the trailing ReadyForQuery (the caller sends one
// ReadyForQuery per Query message, not per statement).
func (conn *ClientConn) execSimple(ctx context.Context, stmt string) error {
	if session.IsSetOrShow(stmt) {
		res, err := session.HandleSetShow(conn.session.Params, stmt)
		if err != nil {
			return pgerror.New(pgerrcode.SyntaxError, err.Error())
		}
		return conn.writeSetShowResult(res)
	}

	result, err := conn.exec.Execute(ctx, stmt, nil)
	if err != nil {
		return err
	}
	return conn.writeResult(ctx, stmt, result)
}

func (conn *ClientConn) writeSetShowResult(res *session.SetShowResult) error {
	if !res.IsShow {
		return writeMessages(conn, &pgproto3.CommandComplete{CommandTag: []byte(res.CommandTag)})
	}
	desc := &pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
		{Name: []byte(res.ShowName), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
	}}
	row := &pgproto3.DataRow{Values: [][]byte{[]byte(res.ShowValue)}}
	return writeMessages(conn, desc, row, &pgproto3.CommandComplete{CommandTag: []byte("SHOW")})
}

// writeResult renders an Executor result into RowDescription/DataRow/
// CommandComplete messages (or a bare CommandComplete for a statement
// that returns no rows).
func (conn *ClientConn) writeResult(ctx context.Context, sqlText string, result *executor.Result) error {
	if result.Columns == nil {
		return writeMessages(conn, &pgproto3.CommandComplete{CommandTag: []byte(result.CommandTag)})
	}

	var sample []any
	if len(result.Rows) > 0 {
		sample = result.Rows[0]
	}
	oids := columnOIDs(ctx, conn.session.Store, sqlText, result.Columns, sample)

	if err := writeMessages(conn, toRowDescription(result.Columns, oids, nil)); err != nil {
		return err
	}
	for _, values := range result.Rows {
		row, err := encodeDataRow(values, oids, nil)
		if err != nil {
			return err
		}
		if err := writeMessages(conn, row); err != nil {
			return err
		}
	}
	return writeMessages(conn, &pgproto3.CommandComplete{CommandTag: []byte(result.CommandTag)})
}

// handleParse implements the Extended Query Protocol's Parse message:
// validate the statement (rejecting more than one, per the protocol),
// resolve its parameter OIDs, and register it with the
// session's Portal Manager.
func (conn *ClientConn) handleParse(ctx context.Context, msg *pgproto3.Parse) error {
	defer timer("handleParse")()

	stmts := splitStatements(msg.Query)
	if len(stmts) > 1 {
		return pgerror.New(pgerrcode.InvalidPreparedStatementDefinition,
			"cannot insert multiple commands into a prepared statement")
	}

	paramOIDs := msg.ParameterOIDs
	if len(paramOIDs) == 0 {
		if n := placeholderCount(msg.Query); n > 0 {
			paramOIDs = make([]uint32, n)
		}
	}

	if _, err := conn.session.Portals.AddStatement(msg.Name, msg.Query, paramOIDs); err != nil {
		return err
	}
	return writeMessages(conn, &pgproto3.ParseComplete{})
}

// handleBind implements the Extended Query Protocol's Bind message:
// decode the supplied parameter bytes against the named prepared
// statement's OIDs and bind them into a new portal.
func (conn *ClientConn) handleBind(ctx context.Context, msg *pgproto3.Bind) error {
	defer timer("handleBind")()

	stmt, ok := conn.session.Portals.Statement(msg.PreparedStatement)
	if !ok {
		return pgerror.New(pgerrcode.InvalidSQLStatementName,
			fmt.Sprintf("prepared statement %q does not exist", msg.PreparedStatement))
	}

	args, err := decodeBindParams(msg.Parameters, stmt.ParamOIDs, msg.ParameterFormatCodes)
	if err != nil {
		return pgerror.New(pgerrcode.InvalidParameterValue, err.Error())
	}

	if err := conn.session.Portals.AddPortal(
		msg.DestinationPortal, stmt, args,
		msg.ParameterFormatCodes, msg.ResultFormatCodes); err != nil {
		return pgerror.New(pgerrcode.DuplicateCursor, err.Error())
	}
	return writeMessages(conn, &pgproto3.BindComplete{})
}

// handleDescribe implements the Extended Query Protocol's Describe
// message for both the statement and portal target kinds. Parameter
// types are always known (from Parse); result shape is only known once
// the statement has actually been planned, so this sends NoData after the
// ParameterDescription for a statement target — PostgreSQL clients that need
// exact result metadata ahead of Execute call Describe on the bound
// portal instead, after which this gateway still can't predict the
// column set without running the query, so it answers NoData and relies
// on the real RowDescription Execute sends with the first result.
func (conn *ClientConn) handleDescribe(ctx context.Context, msg *pgproto3.Describe) error {
	defer timer("handleDescribe")()

	switch msg.ObjectType {
	case PrepareStatementType:
		stmt, ok := conn.session.Portals.Statement(msg.Name)
		if !ok {
			return pgerror.New(pgerrcode.InvalidSQLStatementName,
				fmt.Sprintf("prepared statement %q does not exist", msg.Name))
		}
		if err := writeMessages(conn, &pgproto3.ParameterDescription{ParameterOIDs: stmt.ParamOIDs}); err != nil {
			return err
		}
		return writeMessages(conn, &pgproto3.NoData{})

	case PreparePortalType:
		if _, ok := conn.session.Portals.Portal(msg.Name); !ok {
			return pgerror.New(pgerrcode.InvalidCursorName, fmt.Sprintf("unknown portal %q", msg.Name))
		}
		return writeMessages(conn, &pgproto3.NoData{})

	default:
		return pgerror.New(pgerrcode.ProtocolViolation,
			fmt.Sprintf("invalid DESCRIBE message subtype %x", msg.ObjectType))
	}
}

// handleExecute implements the Extended Query Protocol's Execute message:
// run the bound portal's statement through the Query Executor (or resume
// from its cached result set, for a second Execute against the same
// portal) and stream up to msg.MaxRows rows back in the portal's
// negotiated result formats, per spec.md §4.1/§4.5: "stream DataRow* up
// to max_rows (0 = unlimited) then either CommandComplete (fully
// consumed) or PortalSuspended (partial)".
func (conn *ClientConn) handleExecute(ctx context.Context, msg *pgproto3.Execute) error {
	defer timer("handleExecute")()

	portal, ok := conn.session.Portals.Portal(msg.Portal)
	if !ok {
		return pgerror.New(pgerrcode.InvalidCursorName, fmt.Sprintf("unknown portal %q", msg.Portal))
	}

	if session.IsSetOrShow(portal.Stmt.Query) {
		res, err := session.HandleSetShow(conn.session.Params, portal.Stmt.Query)
		if err != nil {
			return pgerror.New(pgerrcode.SyntaxError, err.Error())
		}
		return conn.writeSetShowResult(res)
	}

	state := portal.State()

	var columns []string
	var rows [][]any
	var commandTag string
	offset := 0

	if state.Cached != nil {
		// A later Execute against the same portal: resume from where
		// the first Execute's cached result set left off rather than
		// re-running the query.
		columns = state.Cached.Columns
		rows = state.Cached.Rows
		commandTag = state.Cached.CommandTag
		offset = state.RowOffset
	} else {
		result, err := conn.exec.Execute(ctx, portal.Stmt.Query, portal.Args)
		if err != nil {
			return err
		}
		if result.Columns == nil {
			return writeMessages(conn, &pgproto3.CommandComplete{CommandTag: []byte(result.CommandTag)})
		}
		columns = result.Columns
		rows = result.Rows
		commandTag = result.CommandTag
		if err := conn.session.Portals.UpdateState(portal.Name, 0, false, &session.CachedResult{
			Columns: columns, Rows: rows, CommandTag: commandTag,
		}); err != nil {
			return err
		}
	}

	var sample []any
	if len(rows) > 0 {
		sample = rows[0]
	}
	oids := columnOIDs(ctx, conn.session.Store, portal.Stmt.Query, columns, sample)

	if err := writeMessages(conn, toRowDescription(columns, oids, portal.ResultFmt)); err != nil {
		return err
	}

	remaining := rows[offset:]
	limit := len(remaining)
	if msg.MaxRows > 0 && int(msg.MaxRows) < limit {
		limit = int(msg.MaxRows)
	}

	for _, values := range remaining[:limit] {
		row, err := encodeDataRow(values, oids, portal.ResultFmt)
		if err != nil {
			return err
		}
		if err := writeMessages(conn, row); err != nil {
			return err
		}
	}

	newOffset := offset + limit
	complete := newOffset >= len(rows)
	if err := conn.session.Portals.UpdateState(portal.Name, newOffset, complete, nil); err != nil {
		return err
	}

	if !complete {
		return writeMessages(conn, &pgproto3.PortalSuspended{})
	}
	return writeMessages(conn, &pgproto3.CommandComplete{CommandTag: []byte(commandTag)})
}

// handleClose implements the Extended Query Protocol's Close message. Per
// the protocol, closing a nonexistent statement or portal is not an
// error.
func (conn *ClientConn) handleClose(ctx context.Context, msg *pgproto3.Close) error {
	defer timer("handleClose")()

	switch msg.ObjectType {
	case PrepareStatementType:
		conn.session.Portals.CloseStatement(msg.Name)
	case PreparePortalType:
		conn.session.Portals.ClosePortal(msg.Name)
	default:
		return fmt.Errorf("pgsqlite: unknown close target type %x", msg.ObjectType)
	}
	return writeMessages(conn, &pgproto3.CloseComplete{})
}
