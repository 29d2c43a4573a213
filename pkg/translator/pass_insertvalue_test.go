package translator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

var _ = Describe("InsertValuePass", func() {
	var pass translator.InsertValuePass

	It("converts an ARRAY[] constructor into json_array()", func() {
		out, err := pass.Apply(&translator.Context{}, "INSERT INTO t (tags) VALUES (ARRAY['a', 'b', 'c'])")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("INSERT INTO t (tags) VALUES (json_array('a', 'b', 'c'))"))
	})

	It("converts a '{a,b,c}' array literal into json_array()", func() {
		out, err := pass.Apply(&translator.Context{}, "INSERT INTO t (tags) VALUES ('{a,b,c}')")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("INSERT INTO t (tags) VALUES (json_array('a', 'b', 'c'))"))
	})

	It("rewrites a SQLAlchemy batch VALUES-as-subquery into UNION ALL", func() {
		sql := `SELECT p1::INTEGER, p2::TEXT FROM (VALUES ($1, $2), ($3, $4)) AS t (p1, p2)`
		out, err := pass.Apply(&translator.Context{}, sql)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT $1, $2 UNION ALL SELECT $3, $4"))
	})

	It("leaves a plain statement with no table metadata unchanged", func() {
		sql := "INSERT INTO t (name) VALUES ('alice')"
		out, err := pass.Apply(&translator.Context{}, sql)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(sql))
	})
})
