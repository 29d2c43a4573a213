package translator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

var _ = Describe("RegexPass", func() {
	var pass translator.RegexPass

	It("rewrites ~ into regexp(pattern, text)", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT * FROM t WHERE name ~ '^foo'")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT * FROM t WHERE regexp('^foo', name)"))
	})

	It("rewrites !~* into NOT regexpi(pattern, text)", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT * FROM t WHERE name !~* 'bar'")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT * FROM t WHERE NOT regexpi('bar', name)"))
	})

	It("strips a COLLATE clause attached to the left operand", func() {
		out, err := pass.Apply(&translator.Context{}, "SELECT * FROM t WHERE name COLLATE \"C\" ~ 'foo'")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("SELECT * FROM t WHERE regexp('foo', name)"))
	})
})
