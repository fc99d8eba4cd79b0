package cache

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/mem/cache/prefetch"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/sim/hooking"
	"go.uber.org/mock/gomock"
)

func load(addr, size uint64) mem.Request {
	return mem.RequestBuilder{}.
		WithAddress(addr).
		WithKind(mem.Load).
		WithByteSize(size).
		Build()
}

func store(addr uint64, data []byte) mem.Request {
	return mem.RequestBuilder{}.
		WithAddress(addr).
		WithKind(mem.Store).
		WithData(data).
		Build()
}

func zeroBlocks(latency sim.Cycle) func(sim.Cycle, uint64, uint64) ([]byte, sim.Cycle, error) {
	return func(_ sim.Cycle, _ uint64, size uint64) ([]byte, sim.Cycle, error) {
		return make([]byte, size), latency, nil
	}
}

var _ = Describe("Config", func() {
	It("should accept the default L1", func() {
		Expect(MakeBuilder().config.Validate()).To(Succeed())
		Expect(MakeBuilder().config.NumSets()).To(Equal(128))
		Expect(MakeBuilder().config.HitLatency()).To(Equal(sim.Cycle(6)))
	})

	DescribeTable("should reject invalid geometry",
		func(modify func(c *Config)) {
			c := MakeBuilder().config
			modify(&c)

			Expect(c.Validate()).To(MatchError(mem.ErrInvalidConfiguration))
		},
		Entry("size", func(c *Config) { c.Size = 3000 }),
		Entry("block size", func(c *Config) { c.BlockSize = 48 }),
		Entry("associativity", func(c *Config) { c.Assoc = 3 }),
		Entry("too many ways", func(c *Config) { c.Size = 128; c.Assoc = 4 }),
		Entry("no MSHR", func(c *Config) { c.MSHRs = 0 }),
		Entry("no target", func(c *Config) { c.TargetsPerMSHR = 0 }),
		Entry("prefetcher", func(c *Config) {
			c.Prefetcher = &prefetch.Config{Threshold: 0, Degree: 1}
		}),
	)

	It("should not build without a lower level", func() {
		_, err := MakeBuilder().Build("Cache")

		Expect(err).To(MatchError(mem.ErrInvalidConfiguration))
	})
})

var _ = Describe("Cache", func() {
	var (
		mockCtrl *gomock.Controller
		lower    *MockLowerLevel
		c        *Cache
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		lower = NewMockLowerLevel(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func(b Builder) *Cache {
		cache, err := b.WithLowerLevel(lower).Build("Cache")
		Expect(err).NotTo(HaveOccurred())

		return cache
	}

	Context("with the default L1", func() {
		BeforeEach(func() {
			c = build(MakeBuilder())
		})

		It("should miss and then hit", func() {
			lower.EXPECT().
				Fetch(sim.Cycle(2), uint64(0x40), uint64(64)).
				Return(make([]byte, 64), sim.Cycle(64), nil)

			res, err := c.Access(0, load(0x48, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hit).To(BeFalse())
			Expect(res.Latency).To(Equal(sim.Cycle(68)))
			Expect(res.ServedBy).To(Equal(mem.LevelMemory))
			Expect(c.NumInFlight()).To(Equal(1))
			Expect(c.Lookup(0x40)).To(BeFalse())

			res, err = c.Access(68, load(0x40, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hit).To(BeTrue())
			Expect(res.Latency).To(Equal(sim.Cycle(6)))
			Expect(res.ServedBy).To(Equal(mem.LevelL1))
			Expect(c.Stats().Accesses).To(Equal(uint64(2)))
			Expect(c.Stats().Hits).To(Equal(uint64(1)))
			Expect(c.Stats().Misses).To(Equal(uint64(1)))
			Expect(c.Stats().Fills).To(Equal(uint64(1)))
			Expect(c.Stats().HitRate()).To(Equal(0.5))
		})

		It("should fill three sequential lines without eviction", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(3)

			now := sim.Cycle(0)
			for _, addr := range []uint64{0, 64, 128} {
				res, err := c.Access(now, load(addr, 8))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Hit).To(BeFalse())
				now += res.Latency
			}

			for _, addr := range []uint64{0, 64, 128} {
				res, err := c.Access(now, load(addr, 8))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Hit).To(BeTrue())
				now += res.Latency
			}

			Expect(c.Stats().Evictions).To(BeZero())
		})

		It("should merge a miss into an in-flight block", func() {
			lower.EXPECT().Fetch(gomock.Any(), uint64(0), uint64(64)).
				DoAndReturn(zeroBlocks(64))

			_, err := c.Access(0, load(0x0, 4))
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Access(10, load(0x8, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hit).To(BeFalse())
			Expect(res.ServedBy).To(Equal(mem.LevelMSHR))
			Expect(res.Latency).To(Equal(sim.Cycle(66 - 10 + 2)))
			Expect(c.Stats().MSHRHits).To(Equal(uint64(1)))
		})

		It("should keep stores made while the block is in flight", func() {
			lower.EXPECT().Fetch(gomock.Any(), uint64(0), uint64(64)).
				DoAndReturn(zeroBlocks(64))

			_, err := c.Access(0, store(0x4, []byte{1, 2, 3, 4}))
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Access(1, load(0x4, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Data).To(Equal([]byte{1, 2, 3, 4}))

			res, err = c.Access(100, load(0x2, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hit).To(BeTrue())
			Expect(res.Data).To(Equal([]byte{0, 0, 1, 2}))

			var written []byte
			lower.EXPECT().WriteBack(sim.Cycle(200), uint64(0), gomock.Any()).
				DoAndReturn(func(_ sim.Cycle, _ uint64, data []byte) (sim.Cycle, error) {
					written = data
					return 60, nil
				})

			Expect(c.Flush(200)).To(Succeed())
			Expect(written[4:8]).To(Equal([]byte{1, 2, 3, 4}))
			Expect(c.Lookup(0)).To(BeFalse())
		})

		It("should stall when all MSHRs are in use", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(5)

			for i := uint64(0); i < 4; i++ {
				_, err := c.Access(0, load(i*64, 4))
				Expect(err).NotTo(HaveOccurred())
			}

			_, err := c.Access(0, load(0x100, 4))

			Expect(err).To(MatchError(mem.ErrNoFreeMSHR))
			Expect(mem.IsStall(err)).To(BeTrue())
			Expect(c.Stats().Stalls).To(Equal(uint64(1)))
			Expect(c.Stats().Accesses).To(Equal(uint64(4)))

			next, ok := c.NextReadyTime()
			Expect(ok).To(BeTrue())
			Expect(next).To(Equal(sim.Cycle(66)))

			_, err = c.Access(next, load(0x100, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.NumInFlight()).To(Equal(1))
		})

		It("should evict the least recently used line", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(3)

			_, err := c.Access(0, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(100, load(8192, 4))
			Expect(err).NotTo(HaveOccurred())
			res, err := c.Access(200, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hit).To(BeTrue())
			_, err = c.Access(300, load(16384, 4))
			Expect(err).NotTo(HaveOccurred())

			c.Tick(400)

			Expect(c.Lookup(0)).To(BeTrue())
			Expect(c.Lookup(8192)).To(BeFalse())
			Expect(c.Lookup(16384)).To(BeTrue())
			Expect(c.Blocks()[0]).To(ConsistOf(uint64(0), uint64(16384)))
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
			Expect(c.Stats().Writebacks).To(BeZero())
		})

		It("should write dirty victims to the lower level", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(3)
			lower.EXPECT().WriteBack(sim.Cycle(200), uint64(0), gomock.Any()).
				DoAndReturn(func(_ sim.Cycle, _ uint64, data []byte) (sim.Cycle, error) {
					Expect(data[0]).To(Equal(byte(7)))
					return 60, nil
				})

			_, err := c.Access(0, store(0, []byte{7}))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(100, load(8192, 4))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(200, load(16384, 4))
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})

		It("should stall when every way of the set is in flight", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(2)

			_, err := c.Access(0, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(0, load(8192, 4))
			Expect(err).NotTo(HaveOccurred())

			_, err = c.Access(0, load(16384, 4))
			Expect(err).To(MatchError(mem.ErrNoVictim))
			Expect(mem.IsStall(err)).To(BeTrue())

			Expect(c.Prefetch(0, 16384)).To(BeFalse())
			Expect(c.Stats().PrefetchDropped).To(Equal(uint64(1)))
		})

		It("should take the way of an in-flight prefetch on a demand miss", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(3)

			Expect(c.Prefetch(0, 0)).To(BeTrue())
			_, err := c.Access(0, load(8192, 4))
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Access(1, load(16384, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Latency).To(Equal(sim.Cycle(2 + 64 + 2)))
			Expect(c.Stats().PrefetchCancelled).To(Equal(uint64(1)))
			Expect(c.Stats().Stalls).To(BeZero())
			Expect(c.NumInFlight()).To(Equal(2))

			c.Tick(200)

			Expect(c.Lookup(0)).To(BeFalse())
			Expect(c.Lookup(8192)).To(BeTrue())
			Expect(c.Lookup(16384)).To(BeTrue())
		})

		It("should abort on lower level errors without changing state", func() {
			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, sim.Cycle(0),
					fmt.Errorf("Mem: %w", mem.ErrOutOfRange))

			_, err := c.Access(0, load(0x40, 4))

			Expect(err).To(MatchError(mem.ErrOutOfRange))
			Expect(mem.IsStall(err)).To(BeFalse())
			Expect(c.NumInFlight()).To(BeZero())
			Expect(c.Stats().Accesses).To(BeZero())
		})

		It("should reject accesses that cross a block", func() {
			_, err := c.Access(0, load(0x3e, 4))

			Expect(err).To(MatchError(mem.ErrCrossBlock))
		})

		It("should insert, evict and invalidate blocks", func() {
			data := make([]byte, 64)
			data[3] = 42

			Expect(c.Insert(0, 0x40, data, true)).To(Succeed())
			Expect(c.Lookup(0x43)).To(BeTrue())

			res, err := c.Access(1, load(0x43, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Hit).To(BeTrue())
			Expect(res.Data).To(Equal([]byte{42}))

			lower.EXPECT().WriteBack(sim.Cycle(10), uint64(0x40), data).
				Return(sim.Cycle(60), nil)

			evicted, err := c.Evict(10, 0x40)
			Expect(err).NotTo(HaveOccurred())
			Expect(evicted).To(BeTrue())
			Expect(c.Lookup(0x40)).To(BeFalse())

			Expect(c.Insert(20, 0x80, data, true)).To(Succeed())
			Expect(c.Invalidate(0x80)).To(BeTrue())
			Expect(c.Invalidate(0x80)).To(BeFalse())
		})

		It("should invoke hooks on fill and evict", func() {
			var events []*hooking.HookPos
			c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				events = append(events, ctx.Pos)
			}))

			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).Times(3)

			_, err := c.Access(0, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(100, load(8192, 4))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(200, load(16384, 4))
			Expect(err).NotTo(HaveOccurred())

			Expect(events).To(Equal([]*hooking.HookPos{
				HookPosFill, HookPosFill, HookPosEvict,
			}))
		})
	})

	It("should stall when an MSHR entry has no target left", func() {
		c = build(MakeBuilder().WithMSHRs(4, 2))
		lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
			DoAndReturn(zeroBlocks(64))

		_, err := c.Access(0, load(0x0, 4))
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Access(1, load(0x4, 4))
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Access(2, load(0x8, 4))

		Expect(err).To(MatchError(mem.ErrTooManyTargets))
		Expect(mem.IsStall(err)).To(BeTrue())
	})

	It("should take the MSHR entry of an in-flight prefetch on a demand miss", func() {
		c = build(MakeBuilder().WithMSHRs(1, 4))
		lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
			DoAndReturn(zeroBlocks(64)).Times(3)

		Expect(c.Prefetch(0, 0x40)).To(BeTrue())

		res, err := c.Access(0, load(0x80, 4))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Latency).To(Equal(sim.Cycle(2 + 64 + 2)))
		Expect(c.Stats().PrefetchCancelled).To(Equal(uint64(1)))
		Expect(c.NumInFlight()).To(Equal(1))

		c.Tick(100)

		Expect(c.Lookup(0x40)).To(BeFalse())
		Expect(c.Lookup(0x80)).To(BeTrue())

		_, err = c.Access(100, load(0x40, 4))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should keep stalling when only demand misses are in flight", func() {
		c = build(MakeBuilder().WithMSHRs(1, 4))
		lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
			DoAndReturn(zeroBlocks(64))

		Expect(c.Prefetch(0, 0x40)).To(BeTrue())
		_, err := c.Access(0, load(0x40, 4))
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Access(0, load(0x80, 4))

		Expect(err).To(MatchError(mem.ErrNoFreeMSHR))
		Expect(c.Stats().PrefetchCancelled).To(BeZero())
	})

	It("should prefetch along a stride", func() {
		c = build(MakeBuilder().WithPrefetcher(prefetch.DefaultConfig()))
		lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
			DoAndReturn(zeroBlocks(64)).AnyTimes()

		for i, addr := range []uint64{0, 64, 128, 192} {
			_, err := c.Access(sim.Cycle(i*100), load(addr, 4))
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(c.Stats().PrefetchIssued).To(Equal(uint64(1)))
		Expect(c.Prefetcher().Stats().Issued).To(Equal(uint64(1)))

		res, err := c.Access(400, load(256, 4))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Hit).To(BeTrue())
		Expect(c.Stats().PrefetchUseful).To(Equal(uint64(1)))
	})

	It("should not prefetch resident blocks", func() {
		c = build(MakeBuilder())
		lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
			DoAndReturn(zeroBlocks(64)).Times(2)

		Expect(c.Prefetch(0, 0x40)).To(BeTrue())
		Expect(c.Prefetch(1, 0x40)).To(BeFalse())

		c.Tick(100)

		Expect(c.Lookup(0x40)).To(BeTrue())
		Expect(c.Prefetch(100, 0x40)).To(BeFalse())
		Expect(c.Prefetch(100, 0x80)).To(BeTrue())
		Expect(c.Stats().PrefetchIssued).To(Equal(uint64(2)))
		Expect(c.Stats().PrefetchDropped).To(Equal(uint64(2)))
	})

	Context("with a victim cache", func() {
		var vc *VictimCache

		BeforeEach(func() {
			var err error
			vc, err = MakeBuilder().
				WithSize(256).
				WithAssoc(4).
				WithLatencies(1, 1, 1).
				BuildVictimCache("VictimCache")
			Expect(err).NotTo(HaveOccurred())

			lower.EXPECT().Fetch(gomock.Any(), gomock.Any(), uint64(64)).
				DoAndReturn(zeroBlocks(64)).AnyTimes()
		})

		It("should swap a clean victim back", func() {
			c = build(MakeBuilder().
				WithSize(128).
				WithAssoc(1).
				WithWritebackClean(true).
				WithVictimCache(vc))

			res, err := c.Access(0, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Latency).To(Equal(sim.Cycle(2 + 1 + 64 + 2)))
			missLatency := res.Latency

			_, err = c.Access(100, load(128, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(vc.Lookup(0)).To(BeTrue())

			res, err = c.Access(200, load(0, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.ServedBy).To(Equal(mem.LevelVictim))
			Expect(res.Latency).To(Equal(sim.Cycle(2 + 3 + 2)))
			Expect(res.Latency).To(BeNumerically("<", missLatency))
			Expect(vc.Lookup(0)).To(BeFalse())
			Expect(vc.Lookup(128)).To(BeTrue())
			Expect(c.Stats().VictimHits).To(Equal(uint64(1)))
			Expect(c.Stats().VictimMisses).To(Equal(uint64(2)))
		})

		It("should only hand dirty lines to the victim cache by default", func() {
			c = build(MakeBuilder().
				WithSize(128).
				WithAssoc(1).
				WithVictimCache(vc))

			_, err := c.Access(0, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(100, store(128, []byte{5}))
			Expect(err).NotTo(HaveOccurred())
			Expect(vc.Lookup(0)).To(BeFalse())

			_, err = c.Access(200, load(0, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(vc.Lookup(128)).To(BeTrue())

			res, err := c.Access(300, load(128, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ServedBy).To(Equal(mem.LevelVictim))
			Expect(res.Data).To(Equal([]byte{5}))
			Expect(c.Stats().VictimWritebacks).To(Equal(uint64(1)))
		})

		It("should return a cancelled prefetch to the victim cache", func() {
			c = build(MakeBuilder().
				WithSize(128).
				WithAssoc(1).
				WithMSHRs(1, 4).
				WithVictimCache(vc))

			_, err := c.Access(0, store(0, []byte{7}))
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Access(100, load(128, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(vc.Lookup(0)).To(BeTrue())

			c.Tick(200)
			Expect(c.Prefetch(200, 0)).To(BeTrue())
			Expect(vc.Lookup(0)).To(BeFalse())

			_, err = c.Access(201, load(64, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(c.Stats().PrefetchCancelled).To(Equal(uint64(1)))
			Expect(vc.Lookup(0)).To(BeTrue())

			res, err := c.Access(300, load(0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ServedBy).To(Equal(mem.LevelVictim))
			Expect(res.Data).To(Equal([]byte{7}))
		})

		It("should reject a victim cache with another block size", func() {
			_, err := MakeBuilder().
				WithBlockSize(32).
				WithLowerLevel(lower).
				WithVictimCache(vc).
				Build("Cache")

			Expect(err).To(MatchError(mem.ErrInvalidConfiguration))
		})
	})
})
