package cache

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"go.uber.org/mock/gomock"
)

func line(addr uint64, dirty bool, firstByte byte) Line {
	data := make([]byte, 64)
	data[0] = firstByte

	return Line{BlockAddr: addr, Data: data, Dirty: dirty}
}

var _ = Describe("VictimCache", func() {
	var (
		mockCtrl *gomock.Controller
		target   *MockLowerLevel
		vc       *VictimCache
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		target = NewMockLowerLevel(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("fully associative", func() {
		BeforeEach(func() {
			var err error
			vc, err = MakeBuilder().
				WithSize(256).
				WithAssoc(4).
				WithLatencies(1, 1, 1).
				BuildVictimCache("VictimCache")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should push out the least recently inserted line", func() {
			for i := uint64(0); i < 5; i++ {
				Expect(vc.AcceptWriteback(sim.Cycle(i), line(i*0x1000, false, 0))).
					To(Succeed())

				if i == 3 {
					Expect(vc.Lookup(0)).To(BeTrue())
				}
			}

			Expect(vc.Lookup(0)).To(BeFalse())
			for i := uint64(1); i < 5; i++ {
				Expect(vc.Lookup(i * 0x1000)).To(BeTrue())
			}

			_, found := vc.Extract(0)
			Expect(found).To(BeFalse())
			Expect(vc.NumValidLines()).To(Equal(4))
			Expect(vc.Stats().Evictions).To(Equal(uint64(1)))
			Expect(vc.Stats().Misses).To(Equal(uint64(1)))
		})

		It("should give lines back and forget them", func() {
			Expect(vc.AcceptWriteback(0, line(0x40, true, 9))).To(Succeed())

			l, found := vc.Extract(0x44)

			Expect(found).To(BeTrue())
			Expect(l.BlockAddr).To(Equal(uint64(0x40)))
			Expect(l.Dirty).To(BeTrue())
			Expect(l.Data[0]).To(Equal(byte(9)))
			Expect(vc.Lookup(0x40)).To(BeFalse())
			Expect(vc.Stats().HitRate()).To(Equal(1.0))
		})

		It("should drop dirty evictions without a write-back target", func() {
			for i := uint64(0); i < 5; i++ {
				Expect(vc.AcceptWriteback(0, line(i*0x40, true, 0))).To(Succeed())
			}

			Expect(vc.Stats().Dropped).To(Equal(uint64(1)))
			Expect(vc.Stats().Writebacks).To(BeZero())
		})

		It("should write dirty evictions to the write-back target", func() {
			vc.SetWritebackTarget(target)
			target.EXPECT().
				WriteBack(sim.Cycle(4), uint64(0), gomock.Any()).
				Return(sim.Cycle(60), nil)

			for i := uint64(0); i < 5; i++ {
				Expect(vc.AcceptWriteback(sim.Cycle(i), line(i*0x40, i == 0, 0))).
					To(Succeed())
			}

			Expect(vc.Stats().Writebacks).To(Equal(uint64(1)))
			Expect(vc.Stats().Dropped).To(BeZero())
		})

		It("should flush dirty lines to the write-back target", func() {
			vc.SetWritebackTarget(target)
			target.EXPECT().
				WriteBack(sim.Cycle(10), uint64(0x80), gomock.Any()).
				Return(sim.Cycle(60), nil)

			Expect(vc.AcceptWriteback(0, line(0x40, false, 0))).To(Succeed())
			Expect(vc.AcceptWriteback(0, line(0x80, true, 0))).To(Succeed())

			Expect(vc.Flush(10)).To(Succeed())
			Expect(vc.NumValidLines()).To(BeZero())
		})

		It("should name itself when its data array cannot be read", func() {
			Expect(vc.AcceptWriteback(0, line(0, false, 0))).To(Succeed())
			vc.storage = mem.NewStorage(0)

			Expect(func() { vc.Extract(0) }).
				To(PanicWith(ContainSubstring("VictimCache: data array read")))
		})

		It("should reject lines of the wrong size", func() {
			err := vc.AcceptWriteback(0, Line{BlockAddr: 0, Data: []byte{1}})

			Expect(err).To(HaveOccurred())
		})
	})

	Context("4KB 4-way", func() {
		BeforeEach(func() {
			var err error
			vc, err = MakeBuilder().
				WithSize(4 * mem.KB).
				WithAssoc(4).
				WithLatencies(1, 1, 1).
				BuildVictimCache("VictimCache")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should evict within the set the lines map to", func() {
			for i := uint64(0); i < 5; i++ {
				Expect(vc.AcceptWriteback(0, line(i*1024, false, 0))).To(Succeed())
			}

			Expect(vc.Lookup(0)).To(BeFalse())
			Expect(vc.Lookup(4096)).To(BeTrue())
			Expect(vc.NumValidLines()).To(Equal(4))
		})
	})
})
