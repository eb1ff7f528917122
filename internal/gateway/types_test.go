package gateway

import (
	"encoding/json"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

var _ = Describe("Date", func() {
	It("should round-trip as YYYY-MM-DD", func() {
		data, err := json.Marshal(NewDate(2024, time.March, 5))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`"2024-03-05"`))

		var d Date
		Expect(json.Unmarshal(data, &d)).To(Succeed())
		Expect(d.String()).To(Equal("2024-03-05"))
	})

	It("should treat null and empty as the zero date", func() {
		var d Date
		Expect(json.Unmarshal([]byte(`null`), &d)).To(Succeed())
		Expect(d.IsZero()).To(BeTrue())
		Expect(json.Unmarshal([]byte(`""`), &d)).To(Succeed())
		Expect(d.IsZero()).To(BeTrue())
	})

	It("should reject other layouts", func() {
		var d Date
		Expect(json.Unmarshal([]byte(`"03/05/2024"`), &d)).NotTo(Succeed())
	})
})

var _ = Describe("Timestamp", func() {
	DescribeTable("accepted layouts",
		func(raw string, hour int) {
			var ts Timestamp
			Expect(json.Unmarshal([]byte(raw), &ts)).To(Succeed())
			Expect(ts.Hour()).To(Equal(hour))
		},
		Entry("RFC 3339", `"2024-01-15T10:30:00Z"`, 10),
		Entry("zone-less with micros", `"2024-01-15T11:30:00.123456"`, 11),
		Entry("space separated", `"2024-01-15 12:30:00"`, 12),
	)
})

var _ = Describe("TransactionQuery", func() {
	It("should omit zero fields", func() {
		Expect(TransactionQuery{}.values()).To(BeEmpty())
	})

	It("should use the server's parameter names", func() {
		v := TransactionQuery{Skip: 10, Limit: 5, Kind: Income, EndDate: NewDate(2024, time.May, 31)}.values()
		Expect(v.Get("skip")).To(Equal("10"))
		Expect(v.Get("limit")).To(Equal("5"))
		Expect(v.Get("type")).To(Equal("income"))
		Expect(v.Get("end_date")).To(Equal("2024-05-31"))
	})
})

var _ = Describe("TrendSeries", func() {
	It("should report -1 for misaligned series", func() {
		Expect(TrendSeries{Dates: []string{"a"}}.Len()).To(Equal(-1))
	})

	It("should report the shared length", func() {
		Expect(TrendSeries{}.Len()).To(Equal(0))
	})
})
