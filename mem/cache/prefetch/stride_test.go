package prefetch

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// recordingTarget accepts a prefetch unless the block is already resident.
type recordingTarget struct {
	resident map[uint64]bool
	issued   []uint64
}

func newRecordingTarget() *recordingTarget {
	return &recordingTarget{resident: map[uint64]bool{}}
}

func (t *recordingTarget) Prefetch(_ sim.Cycle, blockAddr uint64) bool {
	if t.resident[blockAddr] {
		return false
	}

	t.resident[blockAddr] = true
	t.issued = append(t.issued, blockAddr)

	return true
}

var _ = Describe("StridePrefetcher", func() {
	var (
		p      *StridePrefetcher
		target *recordingTarget
	)

	BeforeEach(func() {
		var err error
		p, err = NewStridePrefetcher(DefaultConfig(), 64)
		Expect(err).NotTo(HaveOccurred())

		target = newRecordingTarget()
		p.SetTarget(target)
	})

	observe := func(addrs ...uint64) {
		for i, a := range addrs {
			p.Observe(sim.Cycle(i), a, mem.Load)
		}
	}

	It("should not prefetch before the threshold is reached", func() {
		observe(0x0, 0x40, 0x80)

		Expect(target.issued).To(BeEmpty())
	})

	It("should prefetch the next block once the stride is confirmed", func() {
		observe(0x0, 0x40, 0x80, 0xc0)

		Expect(target.issued).To(Equal([]uint64{0x100}))
	})

	It("should issue exactly one prefetch per new predicted address", func() {
		observe(0x0, 0x40, 0x80, 0xc0, 0x100, 0x140, 0x180)

		Expect(target.issued).To(Equal([]uint64{0x100, 0x140, 0x180, 0x1c0}))
		Expect(p.Stats().Issued).To(Equal(uint64(4)))
	})

	It("should not issue duplicates when the address repeats", func() {
		observe(0x0, 0x40, 0x80, 0xc0)
		p.Observe(10, 0xc0, mem.Load)
		p.Observe(11, 0xc0, mem.Load)

		Expect(target.issued).To(Equal([]uint64{0x100}))
	})

	It("should drop prefetches for resident blocks", func() {
		target.resident[0x100] = true

		observe(0x0, 0x40, 0x80, 0xc0)

		Expect(target.issued).To(BeEmpty())
		Expect(p.Stats().Dropped).To(Equal(uint64(1)))
	})

	It("should skip predictions inside the current block", func() {
		observe(0x0, 0x8, 0x10, 0x18, 0x20)

		Expect(target.issued).To(BeEmpty())
	})

	It("should reset confidence when the stride changes", func() {
		observe(0x0, 0x40, 0x80, 0x100, 0x180)

		Expect(target.issued).To(BeEmpty())

		p.Observe(10, 0x200, mem.Load)
		Expect(target.issued).To(Equal([]uint64{0x280}))
	})

	It("should follow negative strides", func() {
		observe(0xf00, 0xec0, 0xe80, 0xe40)

		Expect(target.issued).To(Equal([]uint64{0xe00}))
	})

	It("should track separate streams per region", func() {
		for i := uint64(0); i < 4; i++ {
			p.Observe(sim.Cycle(2*i), 0x0000+i*0x40, mem.Load)
			p.Observe(sim.Cycle(2*i+1), 0x8000+i*0x80, mem.Load)
		}

		Expect(target.issued).To(ConsistOf(uint64(0x100), uint64(0x8200)))
	})

	It("should keep a stream across a region boundary", func() {
		observe(0xf00, 0xf40, 0xf80, 0xfc0, 0x1000)

		Expect(target.issued).To(Equal([]uint64{0x1000, 0x1040}))
	})

	It("should run ahead by the degree", func() {
		config := DefaultConfig()
		config.Degree = 2
		p, _ = NewStridePrefetcher(config, 64)
		p.SetTarget(target)

		observe(0x0, 0x40, 0x80, 0xc0, 0x100)

		Expect(target.issued).To(Equal([]uint64{0x100, 0x140, 0x180}))
	})

	It("should replace the least recently used stream", func() {
		config := DefaultConfig()
		config.TableSize = 1
		p, _ = NewStridePrefetcher(config, 64)
		p.SetTarget(target)

		observe(0x0, 0x40, 0x80)
		p.Observe(10, 0x10000, mem.Load)
		p.Observe(11, 0xc0, mem.Load)

		Expect(target.issued).To(BeEmpty())
		Expect(p.streams).To(HaveLen(1))
	})

	It("should reject invalid configurations", func() {
		config := DefaultConfig()
		config.Threshold = 0
		_, err := NewStridePrefetcher(config, 64)
		Expect(err).To(MatchError(mem.ErrInvalidConfiguration))

		_, err = NewStridePrefetcher(DefaultConfig(), 48)
		Expect(err).To(MatchError(mem.ErrInvalidConfiguration))

		config = DefaultConfig()
		config.RegionSize = 3000
		Expect(config.Validate()).To(MatchError(mem.ErrInvalidConfiguration))
	})
})
