package types_test

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pgsqlite-go/pgsqlite/pkg/types"
)

func TestTypes(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Types Suite")
}

var _ = Describe("Registry", func() {
	It("resolves int4 by OID and by name to the same descriptor", func() {
		byOID, ok := types.ByOID(pgtype.Int4OID)
		Expect(ok).To(BeTrue())

		byName, ok := types.ByName("int4")
		Expect(ok).To(BeTrue())

		Expect(byOID).To(BeIdenticalTo(byName))
		Expect(byOID.Affinity).To(Equal(types.AffinityInteger))
	})

	It("reports TEXT affinity for an unregistered OID", func() {
		Expect(types.AffinityFor(999999)).To(Equal(types.AffinityText))
	})

	It("lists every registered descriptor exactly once", func() {
		all := types.AllDescriptors()
		seen := map[uint32]bool{}
		for _, d := range all {
			Expect(seen[d.OID]).To(BeFalse(), "duplicate OID %d in AllDescriptors", d.OID)
			seen[d.OID] = true
		}
		Expect(all).ToNot(BeEmpty())
	})
})

var _ = Describe("Numeric codecs", func() {
	It("round-trips an int8 value through the text codec", func() {
		d, ok := types.ByOID(pgtype.Int8OID)
		Expect(ok).To(BeTrue())

		s, err := d.EncodeText(int64(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("42"))

		v, err := d.DecodeText(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(42)))
	})

	It("round-trips a float8 value through the binary codec", func() {
		d, ok := types.ByOID(pgtype.Float8OID)
		Expect(ok).To(BeTrue())

		b, err := d.EncodeBinary(3.25)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(HaveLen(8))

		v, err := d.DecodeBinary(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(3.25))
	})
})

var _ = Describe("Datetime codecs", func() {
	It("round-trips a DATE stored as days-since-epoch through the text codec", func() {
		d, ok := types.ByOID(pgtype.DateOID)
		Expect(ok).To(BeTrue())

		// 2000-01-02 is one day after the PostgreSQL epoch.
		s, err := d.EncodeText(int64(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("2000-01-02"))

		v, err := d.DecodeText(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(1)))
	})

	It("round-trips a TIMESTAMP through the binary codec", func() {
		d, ok := types.ByOID(pgtype.TimestampOID)
		Expect(ok).To(BeTrue())

		b, err := d.EncodeBinary(int64(1_500_000))
		Expect(err).NotTo(HaveOccurred())

		v, err := d.DecodeBinary(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(1_500_000)))
	})
})

var _ = Describe("Bool codec", func() {
	It("encodes true/false as the PostgreSQL text literals", func() {
		d, ok := types.ByOID(pgtype.BoolOID)
		Expect(ok).To(BeTrue())

		s, err := d.EncodeText(true)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("t"))

		v, err := d.DecodeText("f")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(false))
	})
})
