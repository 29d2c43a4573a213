package translator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
)

var _ = Describe("Translate RETURNING preservation", func() {
	It("survives the full pipeline unchanged", func() {
		sql := "UPDATE accounts SET balance = balance + 1 WHERE id = $1 RETURNING id, balance"
		out, err := translator.Translate(nil, translator.DefaultPipeline(), nil, nil, sql)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("RETURNING id, balance"))
	})
})
