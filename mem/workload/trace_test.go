package workload

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/mem/mem"
)

var _ = Describe("TraceReader", func() {
	It("should parse all access kinds", func() {
		reqs, err := ParseTrace(strings.NewReader(`
# a small trace
F 0x400000 4
L 1000 8   # trailing comment
S 0x40 2 beef

W 80 4
`))

		Expect(err).NotTo(HaveOccurred())
		Expect(reqs).To(HaveLen(4))

		Expect(reqs[0].ID).To(Equal("1"))
		Expect(reqs[0].Kind).To(Equal(mem.Fetch))
		Expect(reqs[0].Address).To(Equal(uint64(0x400000)))
		Expect(reqs[0].Size).To(Equal(uint64(4)))

		Expect(reqs[1].Kind).To(Equal(mem.Load))
		Expect(reqs[1].Address).To(Equal(uint64(0x1000)))

		Expect(reqs[2].Kind).To(Equal(mem.Store))
		Expect(reqs[2].Data).To(Equal([]byte{0xbe, 0xef}))

		Expect(reqs[3].ID).To(Equal("4"))
		Expect(reqs[3].Data).To(Equal([]byte{0, 0, 0, 0}))
	})

	DescribeTable("should reject malformed lines",
		func(line string) {
			_, err := ParseTrace(strings.NewReader("L 0 4\n" + line))

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(HavePrefix("trace line 2"))
		},
		Entry("unknown kind", "X 0 4"),
		Entry("missing size", "L 0"),
		Entry("bad address", "L zz 4"),
		Entry("zero size", "L 0 0"),
		Entry("data on a load", "L 0 1 ff"),
		Entry("data of the wrong size", "S 0 4 ff"),
		Entry("too many fields", "S 0 1 ff ff"),
	)

	It("should return EOF at the end", func() {
		reader := NewTraceReader(strings.NewReader("L 0 4\n"))

		_, err := reader.Next()
		Expect(err).NotTo(HaveOccurred())

		_, err = reader.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("should read trace files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace.txt")
		Expect(os.WriteFile(path, []byte("L 0 4\nS 4 4\n"), 0o644)).To(Succeed())

		reqs, err := ReadTraceFile(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(reqs).To(HaveLen(2))

		_, err = ReadTraceFile(path + ".missing")
		Expect(err).To(HaveOccurred())
	})
})
