package pgwire_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgproto3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/pgwire"
	"github.com/pgsqlite-go/pgsqlite/pkg/session"
)

func TestPgwire(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pgwire Suite")
}

// dial opens a raw TCP connection to the server and runs the startup
// handshake, returning a pgproto3.Frontend ready to send queries, the same
// way a real client library bootstraps a connection.
func dial(t GinkgoTInterface, addr, database string) *pgproto3.Frontend {
	conn, err := net.Dial("tcp", addr)
	Expect(err).NotTo(HaveOccurred())

	frontend := pgproto3.NewFrontend(conn, conn)
	Expect(frontend.Send(&pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      map[string]string{"database": database, "user": "test"},
	})).To(Succeed())
	Expect(frontend.Flush()).To(Succeed())

	for {
		msg, err := frontend.Receive()
		Expect(err).NotTo(HaveOccurred())
		if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
			break
		}
	}
	return frontend
}

var _ = Describe("DBServer", func() {
	var (
		server *pgwire.DBServer
		dir    string
		addr   string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pgsqlite-server-test-*")
		Expect(err).NotTo(HaveOccurred())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr = listener.Addr().String()
		Expect(listener.Close()).To(Succeed())

		server = pgwire.NewServer(addr, dir, session.DefaultPragmaConfig(), session.DefaultConfig(), logr.Discard())
		Expect(server.Start()).To(Succeed())
		time.Sleep(20 * time.Millisecond)
	})

	AfterEach(func() {
		Expect(server.Stop()).To(Succeed())
		os.RemoveAll(dir)
	})

	It("completes the startup handshake and answers a simple query", func() {
		frontend := dial(GinkgoT(), addr, filepath.Base(dir))

		Expect(frontend.Send(&pgproto3.Query{String: "SELECT 1"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var gotRow, gotReady bool
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch msg.(type) {
			case *pgproto3.DataRow:
				gotRow = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(gotRow).To(BeTrue())
	})

	It("runs the extended query protocol end to end", func() {
		frontend := dial(GinkgoT(), addr, filepath.Base(dir))

		Expect(frontend.Send(&pgproto3.Query{String: "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())
		for {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
				break
			}
		}

		Expect(frontend.Send(&pgproto3.Parse{Query: "INSERT INTO widgets (id, name) VALUES ($1, $2)"})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Bind{
			ParameterFormatCodes: []int16{0, 0},
			Parameters:           [][]byte{[]byte("1"), []byte("sprocket")},
		})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Execute{})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Sync{})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var gotCommandComplete, gotReady bool
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch m := msg.(type) {
			case *pgproto3.ErrorResponse:
				Fail("unexpected error response: " + m.Message)
			case *pgproto3.CommandComplete:
				gotCommandComplete = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(gotCommandComplete).To(BeTrue())
	})

	It("emits BackendKeyData and at least 7 ParameterStatus messages during startup", func() {
		conn, err := net.Dial("tcp", addr)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		frontend := pgproto3.NewFrontend(conn, conn)
		Expect(frontend.Send(&pgproto3.StartupMessage{
			ProtocolVersion: pgproto3.ProtocolVersionNumber,
			Parameters:      map[string]string{"database": filepath.Base(dir), "user": "test"},
		})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var paramStatusCount int
		var gotBackendKeyData, gotReady bool
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch msg.(type) {
			case *pgproto3.ParameterStatus:
				paramStatusCount++
			case *pgproto3.BackendKeyData:
				gotBackendKeyData = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(gotBackendKeyData).To(BeTrue())
		Expect(paramStatusCount).To(BeNumerically(">=", 7))
	})

	It("suspends a portal when Execute's max_rows is smaller than the result set, then completes on the next Execute", func() {
		frontend := dial(GinkgoT(), addr, filepath.Base(dir))

		Expect(frontend.Send(&pgproto3.Query{String: "CREATE TABLE nums (n INTEGER)"})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Query{String: "INSERT INTO nums VALUES (1), (2), (3)"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())
		for i := 0; i < 2; i++ {
			for {
				msg, err := frontend.Receive()
				Expect(err).NotTo(HaveOccurred())
				if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
					break
				}
			}
		}

		Expect(frontend.Send(&pgproto3.Parse{Query: "SELECT n FROM nums ORDER BY n"})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Bind{})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Execute{MaxRows: 2})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Sync{})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var rowCount int
		var gotSuspended, gotReady bool
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch msg.(type) {
			case *pgproto3.DataRow:
				rowCount++
			case *pgproto3.PortalSuspended:
				gotSuspended = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(rowCount).To(Equal(2))
		Expect(gotSuspended).To(BeTrue())

		Expect(frontend.Send(&pgproto3.Execute{MaxRows: 2})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Sync{})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		rowCount = 0
		var gotCommandComplete bool
		gotReady = false
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch msg.(type) {
			case *pgproto3.DataRow:
				rowCount++
			case *pgproto3.CommandComplete:
				gotCommandComplete = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(rowCount).To(Equal(1))
		Expect(gotCommandComplete).To(BeTrue())
	})

	It("treats Flush as a no-op that leaves the connection usable", func() {
		frontend := dial(GinkgoT(), addr, filepath.Base(dir))

		Expect(frontend.Send(&pgproto3.Flush{})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Query{String: "SELECT 1"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var gotRow, gotReady bool
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch msg.(type) {
			case *pgproto3.DataRow:
				gotRow = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(gotRow).To(BeTrue())
	})

	It("recovers from an Extended Query Protocol error at the next Sync", func() {
		frontend := dial(GinkgoT(), addr, filepath.Base(dir))

		Expect(frontend.Send(&pgproto3.Parse{Query: "SELECT * FROM no_such_table"})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Bind{})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Execute{})).To(Succeed())
		Expect(frontend.Send(&pgproto3.Sync{})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var gotError, gotReady bool
		for !gotReady {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			switch msg.(type) {
			case *pgproto3.ErrorResponse:
				gotError = true
			case *pgproto3.ReadyForQuery:
				gotReady = true
			}
		}
		Expect(gotError).To(BeTrue())

		// The connection must still be usable after the error/Sync cycle.
		Expect(frontend.Send(&pgproto3.Query{String: "SELECT 1"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())
		for {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
				break
			}
		}
	})
})

var _ = Describe("SET/SHOW pre-dispatch", func() {
	It("round-trips a SET followed by a matching SHOW", func() {
		dir, err := os.MkdirTemp("", "pgsqlite-setshow-test-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := listener.Addr().String()
		Expect(listener.Close()).To(Succeed())

		server := pgwire.NewServer(addr, dir, session.DefaultPragmaConfig(), session.DefaultConfig(), logr.Discard())
		Expect(server.Start()).To(Succeed())
		defer server.Stop()
		time.Sleep(20 * time.Millisecond)

		frontend := dial(GinkgoT(), addr, filepath.Base(dir))

		Expect(frontend.Send(&pgproto3.Query{String: "SET search_path TO public"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())
		for {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
				break
			}
		}

		Expect(frontend.Send(&pgproto3.Query{String: "SHOW search_path"})).To(Succeed())
		Expect(frontend.Flush()).To(Succeed())

		var value string
		for {
			msg, err := frontend.Receive()
			Expect(err).NotTo(HaveOccurred())
			if dr, ok := msg.(*pgproto3.DataRow); ok {
				value = string(dr.Values[0])
			}
			if _, ok := msg.(*pgproto3.ReadyForQuery); ok {
				break
			}
		}
		Expect(value).To(Equal("public"))
	})
})
