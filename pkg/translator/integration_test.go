package translator_test

import (
	"context"
	"database/sql"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/catalog"
	"github.com/pgsqlite-go/pgsqlite/pkg/metadata"
	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

var _ = Describe("Passes needing the metadata store", func() {
	var (
		db    *sql.DB
		store *metadata.Store
		ctx   = context.Background()
	)

	BeforeEach(func() {
		var err error
		db, err = sql.Open(catalog.DriverName, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		for _, ddl := range metadata.DDLStatements {
			_, err = db.ExecContext(ctx, ddl)
			Expect(err).NotTo(HaveOccurred())
		}
		_, err = db.ExecContext(ctx, `CREATE TABLE ledger (id INTEGER PRIMARY KEY, amount TEXT, posted_at INTEGER)`)
		Expect(err).NotTo(HaveOccurred())

		store = metadata.NewStore(db)
		Expect(store.PutColumnType(ctx, metadata.ColumnType{
			TableName: "ledger", ColumnName: "amount", PgType: "numeric", Typmod: -1,
		})).To(Succeed())
		Expect(store.PutColumnType(ctx, metadata.ColumnType{
			TableName: "ledger", ColumnName: "posted_at", PgType: "timestamp", Typmod: -1,
		})).To(Succeed())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	It("wraps arithmetic over a NUMERIC column in decimal_* calls", func() {
		var pass translator.DecimalPass
		tc := &translator.Context{Store: store}
		out, err := pass.Apply(tc, "SELECT amount + 5 FROM ledger")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT decimal_add(amount, decimal_from_text(CAST(5 AS TEXT))) FROM ledger"))
	})

	It("leaves arithmetic over non-NUMERIC tables untouched", func() {
		var pass translator.DecimalPass
		tc := &translator.Context{Store: store}
		out, err := pass.Apply(tc, "SELECT id + 1 FROM other_table")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT id + 1 FROM other_table"))
	})

	It("converts an un-annotated datetime literal in an INSERT VALUES tuple", func() {
		var pass translator.InsertValuePass
		tc := &translator.Context{Store: store}
		out, err := pass.Apply(tc, "INSERT INTO ledger (amount, posted_at) VALUES ('10.50', '2024-01-15 10:00:00')")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("INSERT INTO ledger (amount, posted_at) VALUES ('10.50', pgsqlite_to_timestamp('2024-01-15 10:00:00'))"))
	})

	It("runs the full pipeline end to end", func() {
		out, err := translator.Translate(ctx, translator.DefaultPipeline(), store, nil,
			"INSERT INTO ledger (amount, posted_at) VALUES ('10.50', '2024-01-15 10:00:00') RETURNING id")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("pgsqlite_to_timestamp('2024-01-15 10:00:00')"))
		Expect(out).To(ContainSubstring("RETURNING id"))
	})
})
