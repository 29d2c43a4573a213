package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/executor"
	"github.com/pgsqlite-go/pgsqlite/pkg/session"
	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

func TestExecutor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Executor Suite")
}

var _ = Describe("Executor", func() {
	var (
		ctx  = context.Background()
		db   *session.Database
		sess *session.Session
		exec *executor.Executor
		dir  string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pgsqlite-executor-test-*")
		Expect(err).NotTo(HaveOccurred())

		db, err = session.OpenDatabase(filepath.Join(dir, "test.db"), session.DefaultPragmaConfig())
		Expect(err).NotTo(HaveOccurred())

		sess, err = session.NewSession(ctx, 1, db, logr.Discard(), session.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		exec = executor.New(sess, translator.DefaultPipeline())

		_, err = exec.Execute(ctx, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, name TEXT, balance INTEGER)`, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		sess.Close()
		Expect(db.Close()).To(Succeed())
		os.RemoveAll(dir)
	})

	It("executes an INSERT and reports the fixed 0/1-row command tag", func() {
		res, err := exec.Execute(ctx, `INSERT INTO accounts (id, name, balance) VALUES (1, 'alice', 100)`, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.CommandTag).To(Equal("INSERT 0 1"))
	})

	It("executes a SELECT and reports the row count in the command tag", func() {
		_, err := exec.Execute(ctx, `INSERT INTO accounts (id, name, balance) VALUES (1, 'alice', 100)`, nil)
		Expect(err).NotTo(HaveOccurred())

		res, err := exec.Execute(ctx, `SELECT id, name, balance FROM accounts`, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.CommandTag).To(Equal("SELECT 1"))
		Expect(res.Columns).To(Equal([]string{"id", "name", "balance"}))
		Expect(res.Rows).To(HaveLen(1))
	})

	It("opens, mutates within, and commits an explicit transaction", func() {
		_, err := exec.Execute(ctx, "BEGIN", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.TxStatus()).To(Equal(session.TxActive))

		_, err = exec.Execute(ctx, `INSERT INTO accounts (id, name, balance) VALUES (2, 'bob', 50)`, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = exec.Execute(ctx, "COMMIT", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.TxStatus()).To(Equal(session.TxIdle))

		res, err := exec.Execute(ctx, `SELECT id FROM accounts WHERE id = 2`, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Rows).To(HaveLen(1))
	})

	It("marks the session Failed after a statement error inside a transaction", func() {
		_, err := exec.Execute(ctx, "BEGIN", nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = exec.Execute(ctx, `INSERT INTO accounts (id, name, balance) VALUES (1, 'alice', 100)`, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = exec.Execute(ctx, `INSERT INTO accounts (id, name, balance) VALUES (1, 'dup', 1)`, nil)
		Expect(err).To(HaveOccurred())
		Expect(sess.TxStatus()).To(Equal(session.TxFailed))

		_, err = exec.Execute(ctx, `SELECT 1`, nil)
		Expect(err).To(HaveOccurred())

		_, err = exec.Execute(ctx, "ROLLBACK", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.TxStatus()).To(Equal(session.TxIdle))
	})

	It("routes a cast-laden statement through the full translator path", func() {
		_, err := exec.Execute(ctx, `INSERT INTO accounts (id, name, balance) VALUES (3, 'carol', 0)`, nil)
		Expect(err).NotTo(HaveOccurred())

		res, err := exec.Execute(ctx, `SELECT name::text FROM accounts WHERE id = 3`, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Rows).To(HaveLen(1))
		Expect(res.Rows[0][0]).To(Equal("carol"))
	})
})
