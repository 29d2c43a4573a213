package translator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

var _ = Describe("DatetimePass", func() {
	var pass translator.DatetimePass

	It("rewrites NOW() and CURRENT_TIMESTAMP to now()", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT NOW(), CURRENT_TIMESTAMP")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT now(), now()"))
	})

	It("leaves NOW() untouched inside a CREATE TABLE default", func() {
		sql := "CREATE TABLE t (created_at TIMESTAMP DEFAULT NOW())"
		out, err := pass.Apply(&translator.Context{}, sql)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(sql))
	})

	It("rewrites EXTRACT and DATE_TRUNC", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT EXTRACT(year FROM ts), DATE_TRUNC('month', ts) FROM t")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT extract('year', ts), date_trunc('month', ts) FROM t"))
	})

	It("parses an INTERVAL literal into integer microseconds", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT x + INTERVAL '2 days'")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT x + 172800000000"))
	})

	It("parses a compound INTERVAL literal", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT INTERVAL '1 hour 30 minutes'")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT 5400000000"))
	})
})
