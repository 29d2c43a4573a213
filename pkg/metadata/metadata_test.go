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

func TestMetadata(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metadata Suite")
}

var _ = Describe("Store", func() {
	var (
		ctx   = context.Background()
		dir   string
		db    *session.Database
		store *metadata.Store
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "pgsqlite-metadata-test-*")
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

	It("reports no legacy schema on a freshly migrated database", func() {
		legacy, err := metadata.HasLegacySchema(ctx, db.ReadWrite())
		Expect(err).NotTo(HaveOccurred())
		Expect(legacy).To(BeFalse())
	})

	It("records and retrieves a column type override", func() {
		err := store.PutColumnType(ctx, metadata.ColumnType{
			TableName: "events", ColumnName: "at", PgType: "timestamp", PgOID: 1114, Typmod: -1,
		})
		Expect(err).NotTo(HaveOccurred())

		ct, ok, err := store.ColumnType(ctx, "events", "at")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(ct.PgType).To(Equal("timestamp"))
	})

	It("overwrites an existing column type on conflict", func() {
		Expect(store.PutColumnType(ctx, metadata.ColumnType{
			TableName: "t", ColumnName: "c", PgType: "int4", PgOID: 23, Typmod: -1,
		})).To(Succeed())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{
			TableName: "t", ColumnName: "c", PgType: "int8", PgOID: 20, Typmod: -1,
		})).To(Succeed())

		ct, ok, err := store.ColumnType(ctx, "t", "c")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(ct.PgType).To(Equal("int8"))
	})

	It("lists every recorded column type for a table", func() {
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "a", PgType: "int4", PgOID: 23, Typmod: -1})).To(Succeed())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{TableName: "t", ColumnName: "b", PgType: "text", PgOID: 25, Typmod: -1})).To(Succeed())

		cts, err := store.ColumnTypesForTable(ctx, "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(cts).To(HaveLen(2))
	})

	It("round-trips a setting through SetSetting/GetSetting", func() {
		Expect(store.SetSetting(ctx, "schema_version", "3")).To(Succeed())

		v, ok, err := store.GetSetting(ctx, "schema_version")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("3"))
	})

	It("reports ok=false for a setting that was never recorded", func() {
		_, ok, err := store.GetSetting(ctx, "nonexistent")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("creates an enum type with its ordered labels and looks it up by name", func() {
		Expect(store.CreateEnumType(ctx, 50000, "mood", "public", []string{"sad", "ok", "happy"})).To(Succeed())

		et, ok, err := store.EnumTypeByName(ctx, "mood")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(et.OID).To(Equal(uint32(50000)))

		labels, err := store.EnumValues(ctx, et.OID)
		Expect(err).NotTo(HaveOccurred())
		Expect(labels).To(HaveLen(3))
		Expect(labels[0].Label).To(Equal("sad"))
		Expect(labels[2].Label).To(Equal("happy"))
	})

	It("binds and resolves an enum column", func() {
		Expect(store.CreateEnumType(ctx, 50001, "status", "public", []string{"on", "off"})).To(Succeed())
		Expect(store.BindEnumColumn(ctx, "widgets", "state", 50001)).To(Succeed())

		oid, ok, err := store.EnumColumnOID(ctx, "widgets", "state")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(oid).To(Equal(uint32(50001)))
	})

	It("lists every registered enum type", func() {
		Expect(store.CreateEnumType(ctx, 50002, "a", "public", []string{"x"})).To(Succeed())
		Expect(store.CreateEnumType(ctx, 50003, "b", "public", []string{"y"})).To(Succeed())

		all, err := store.AllEnumTypes(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})
})
