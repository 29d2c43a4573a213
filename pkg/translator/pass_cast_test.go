package translator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

var _ = Describe("CastPass", func() {
	var pass translator.CastPass

	It("rewrites a ::date literal into a pgsqlite_to_date call", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT '2024-01-15'::date")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT pgsqlite_to_date('2024-01-15')"))
	})

	It("rewrites a ::timestamp literal", func() {
		out, err := pass.Apply(&translator.Context{}, "INSERT INTO t (created_at) VALUES ('2024-01-15 10:00:00'::timestamp)")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("INSERT INTO t (created_at) VALUES (pgsqlite_to_timestamp('2024-01-15 10:00:00'))"))
	})

	It("drops a ::text cast, passing the bare value through", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT name::text FROM users")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT name FROM users"))
	})

	It("drops an unrecognized cast target", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT oid::regclass FROM t")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT oid FROM t"))
	})
})
