package metadata_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/metadata"
	"github.com/pgsqlite-go/pgsqlite/pkg/session"
)

func TestDrift(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Drift Suite")
}

var _ = Describe("DetectDrift", func() {
	var (
		ctx   = context.Background()
		dir   string
		db    *session.Database
		store *metadata.Store
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pgsqlite-drift-test-*")
		Expect(err).NotTo(HaveOccurred())

		db, err = session.OpenDatabase(filepath.Join(dir, "test.db"), session.DefaultPragmaConfig())
		Expect(err).NotTo(HaveOccurred())

		for _, ddl := range metadata.DDLStatements {
			_, err := db.ReadWrite().ExecContext(ctx, ddl)
			Expect(err).NotTo(HaveOccurred())
		}
		store = metadata.NewStore(db.ReadWrite())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
		os.RemoveAll(dir)
	})

	It("reports no drift when recorded metadata matches the live schema", func() {
		_, err := db.ReadWrite().ExecContext(ctx, `CREATE TABLE t (id INTEGER, price TEXT)`)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "id", PgType: "int4", PgOID: 23, Typmod: -1})).To(Succeed())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "price", PgType: "numeric", PgOID: 1700, Typmod: -1})).To(Succeed())

		drifts, err := metadata.DetectDrift(ctx, db.ReadWrite(), store)
		Expect(err).NotTo(HaveOccurred())
		Expect(drifts).To(BeEmpty())
	})

	It("reports a missing column when a recorded column is dropped out-of-band", func() {
		_, err := db.ReadWrite().ExecContext(ctx, `CREATE TABLE t (id INTEGER)`)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "id", PgType: "int4", PgOID: 23, Typmod: -1})).To(Succeed())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "gone", PgType: "text", PgOID: 25, Typmod: -1})).To(Succeed())

		drifts, err := metadata.DetectDrift(ctx, db.ReadWrite(), store)
		Expect(err).NotTo(HaveOccurred())
		Expect(drifts).To(HaveLen(1))
		Expect(drifts[0].Kind).To(Equal(metadata.DriftMissing))
		Expect(drifts[0].ColumnName).To(Equal("gone"))
	})

	It("reports an extra column added out-of-band with no recorded override", func() {
		_, err := db.ReadWrite().ExecContext(ctx, `CREATE TABLE t (id INTEGER, extra TEXT)`)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "id", PgType: "int4", PgOID: 23, Typmod: -1})).To(Succeed())

		drifts, err := metadata.DetectDrift(ctx, db.ReadWrite(), store)
		Expect(err).NotTo(HaveOccurred())
		Expect(drifts).To(HaveLen(1))
		Expect(drifts[0].Kind).To(Equal(metadata.DriftExtra))
		Expect(drifts[0].ColumnName).To(Equal("extra"))
	})

	It("reports a mismatch when the live column's declared type no longer matches the recorded pg-type's affinity", func() {
		_, err := db.ReadWrite().ExecContext(ctx, `CREATE TABLE t (amount REAL)`)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "amount", PgType: "numeric", PgOID: 1700, Typmod: -1})).To(Succeed())

		drifts, err := metadata.DetectDrift(ctx, db.ReadWrite(), store)
		Expect(err).NotTo(HaveOccurred())
		Expect(drifts).To(HaveLen(1))
		Expect(drifts[0].Kind).To(Equal(metadata.DriftMismatch))
		Expect(drifts[0].Live).To(Equal("REAL"))
	})

	It("ignores tables that have no recorded metadata at all", func() {
		_, err := db.ReadWrite().ExecContext(ctx, `CREATE TABLE untracked (a TEXT, b TEXT)`)
		Expect(err).NotTo(HaveOccurred())

		drifts, err := metadata.DetectDrift(ctx, db.ReadWrite(), store)
		Expect(err).NotTo(HaveOccurred())
		Expect(drifts).To(BeEmpty())
	})
})
