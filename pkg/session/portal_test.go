package session_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/session"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Suite")
}

var _ = Describe("PortalManager", func() {
	var m *session.PortalManager

	BeforeEach(func() {
		m = session.NewPortalManager(0)
	})

	It("registers and looks up a prepared statement", func() {
		_, err := m.AddStatement("s1", "SELECT 1", nil)
		Expect(err).NotTo(HaveOccurred())

		stmt, ok := m.Statement("s1")
		Expect(ok).To(BeTrue())
		Expect(stmt.Query).To(Equal("SELECT 1"))
	})

	It("rejects re-registering a statement name that already exists", func() {
		_, err := m.AddStatement("s1", "SELECT 1", nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = m.AddStatement("s1", "SELECT 2", nil)
		Expect(err).To(HaveOccurred())
	})

	It("binds a portal to a prepared statement and retrieves it", func() {
		stmt, err := m.AddStatement("s1", "SELECT $1", []uint32{23})
		Expect(err).NotTo(HaveOccurred())

		Expect(m.AddPortal("p1", stmt, []any{42}, nil, nil)).To(Succeed())

		portal, ok := m.Portal("p1")
		Expect(ok).To(BeTrue())
		Expect(portal.Args).To(Equal([]any{42}))
	})

	It("silently no-ops closing a statement or portal that does not exist", func() {
		Expect(func() { m.CloseStatement("nope") }).NotTo(Panic())
		Expect(func() { m.ClosePortal("nope") }).NotTo(Panic())
	})

	It("discards every statement and portal on CloseAll", func() {
		stmt, err := m.AddStatement("s1", "SELECT 1", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.AddPortal("p1", stmt, nil, nil, nil)).To(Succeed())

		m.CloseAll()

		_, ok := m.Statement("s1")
		Expect(ok).To(BeFalse())
		Expect(m.PortalCount()).To(Equal(0))
	})

	It("evicts the least-recently-used portal once over the configured cap", func() {
		bounded := session.NewPortalManager(1)
		stmt, err := bounded.AddStatement("s1", "SELECT 1", nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(bounded.AddPortal("p1", stmt, nil, nil, nil)).To(Succeed())
		Expect(bounded.AddPortal("p2", stmt, nil, nil, nil)).To(Succeed())

		_, ok := bounded.Portal("p1")
		Expect(ok).To(BeFalse())
		_, ok = bounded.Portal("p2")
		Expect(ok).To(BeTrue())
	})

	It("evicts the oldest prepared statement once over the configured statement-pool cap", func() {
		bounded := session.NewPortalManager(0)
		bounded.SetMaxStatements(1)

		_, err := bounded.AddStatement("s1", "SELECT 1", nil)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(time.Millisecond)
		_, err = bounded.AddStatement("s2", "SELECT 2", nil)
		Expect(err).NotTo(HaveOccurred())

		_, ok := bounded.Statement("s1")
		Expect(ok).To(BeFalse())
		_, ok = bounded.Statement("s2")
		Expect(ok).To(BeTrue())
	})

	It("removes portals untouched for longer than the given age", func() {
		stmt, err := m.AddStatement("s1", "SELECT 1", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.AddPortal("p1", stmt, nil, nil, nil)).To(Succeed())

		time.Sleep(10 * time.Millisecond)
		evicted := m.CleanupStale(5 * time.Millisecond)

		Expect(evicted).To(Equal(1))
		Expect(m.PortalCount()).To(Equal(0))
	})
})

var _ = Describe("SET/SHOW pre-dispatch", func() {
	It("detects SET and SHOW statements case-insensitively", func() {
		Expect(session.IsSetOrShow("set foo to bar")).To(BeTrue())
		Expect(session.IsSetOrShow("SHOW foo")).To(BeTrue())
		Expect(session.IsSetOrShow("SELECT 1")).To(BeFalse())
	})

	It("sets a parameter and reads it back via SHOW", func() {
		params := session.NewParameters()

		res, err := session.HandleSetShow(params, "SET application_name = 'myapp'")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.CommandTag).To(Equal("SET"))

		res, err = session.HandleSetShow(params, "SHOW application_name")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsShow).To(BeTrue())
		Expect(res.ShowValue).To(Equal("myapp"))
	})

	It("handles the SET TIME ZONE special form", func() {
		params := session.NewParameters()

		_, err := session.HandleSetShow(params, "SET TIME ZONE 'America/New_York'")
		Expect(err).NotTo(HaveOccurred())

		v, ok := params.Get("TIMEZONE")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("America/New_York"))
	})

	It("answers a static read-only GUC even when never SET", func() {
		params := session.NewParameters()
		res, err := session.HandleSetShow(params, "SHOW server_version")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ShowValue).To(Equal("14.9"))
	})

	It("errors on a statement that is neither SET nor SHOW shaped", func() {
		params := session.NewParameters()
		_, err := session.HandleSetShow(params, "RESET ALL")
		Expect(err).To(HaveOccurred())
	})
})
