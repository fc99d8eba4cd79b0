package tagging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tags", func() {
	var (
		tags TagArray
	)

	BeforeEach(func() {
		tags = NewTagArray(1024, 4, 64)
	})

	It("should be able to get total size", func() {
		Expect(tags.TotalSize()).To(Equal(uint64(262144)))
	})

	It("should decompose addresses", func() {
		tag, setID, offset := tags.Decompose(0x12345)

		Expect(offset).To(Equal(uint64(0x05)))
		Expect(setID).To(Equal(0x12345 >> 6 & 1023))
		Expect(tag).To(Equal(uint64(0x12345 >> 16)))
	})

	It("should rebuild the block address", func() {
		tag, setID, _ := tags.Decompose(0xabcd47)
		block := Block{Tag: tag, SetID: setID}

		Expect(tags.BlockAddr(block)).To(Equal(uint64(0xabcd40)))
	})

	It("should lookup", func() {
		set, setID := tags.GetSet(0x100)
		tag, _, _ := tags.Decompose(0x100)
		set.Blocks[0].Tag = tag
		set.Blocks[0].IsValid = true

		block, ok := tags.Lookup(0x13f)
		Expect(ok).To(BeTrue())
		Expect(block.SetID).To(Equal(setID))
		Expect(block.WayID).To(Equal(0))
	})

	It("should return false when lookup cannot find block", func() {
		block, ok := tags.Lookup(0x100)
		Expect(ok).To(BeFalse())
		Expect(block).To(BeZero())
	})

	It("should return false if block is invalid", func() {
		set, _ := tags.GetSet(0x100)
		set.Blocks[0].IsValid = false

		_, ok := tags.Lookup(0x100)
		Expect(ok).To(BeFalse())
	})

	It("should not match a block with the same index but another tag", func() {
		set, _ := tags.GetSet(0x100)
		set.Blocks[0].IsValid = true
		set.Blocks[0].Tag = 1

		_, ok := tags.Lookup(0x100)
		Expect(ok).To(BeFalse())
	})

	It("should update LRU queue when visiting a block", func() {
		set, _ := tags.GetSet(0x100)

		tags.Visit(set.Blocks[1])

		Expect(set.LRUQueue).To(Equal([]int{0, 2, 3, 1}))
		Expect(set.Blocks[1].LastAccess).To(Equal(uint64(1)))

		tags.Visit(set.Blocks[0])
		Expect(set.Blocks[0].LastAccess).To(Equal(uint64(2)))
	})

	It("should assign cache addresses", func() {
		set, _ := tags.GetSet(0x40)
		Expect(set.Blocks[2].CacheAddress).To(Equal(uint64((1*4 + 2) * 64)))
	})

	It("should lock and unlock blocks", func() {
		tags.Lock(3, 1)
		Expect(tags.GetSets()[3].Blocks[1].IsLocked).To(BeTrue())

		tags.Unlock(3, 1)
		Expect(tags.GetSets()[3].Blocks[1].IsLocked).To(BeFalse())
	})

	It("should panic on non power-of-two geometry", func() {
		Expect(func() { NewTagArray(3, 4, 64) }).To(Panic())
		Expect(func() { NewTagArray(4, 4, 48) }).To(Panic())
	})
})

var _ = Describe("LRU Victim Finder", func() {
	var (
		tags   TagArray
		finder *LRUVictimFinder
	)

	BeforeEach(func() {
		tags = NewTagArray(1, 4, 64)
		finder = NewLRUVictimFinder()
	})

	It("should prefer an empty block", func() {
		set, _ := tags.GetSet(0)
		set.Blocks[0].IsValid = true
		set.Blocks[1].IsValid = true
		tags.Visit(set.Blocks[0])

		victim, ok := finder.FindVictim(tags, 0)

		Expect(ok).To(BeTrue())
		Expect(victim.WayID).To(Equal(2))
	})

	It("should evict the least recently used block", func() {
		set, _ := tags.GetSet(0)
		for i := range set.Blocks {
			set.Blocks[i].IsValid = true
		}

		tags.Visit(set.Blocks[0])
		tags.Visit(set.Blocks[2])

		victim, ok := finder.FindVictim(tags, 0)

		Expect(ok).To(BeTrue())
		Expect(victim.WayID).To(Equal(1))
	})

	It("should skip locked blocks", func() {
		set, _ := tags.GetSet(0)
		for i := range set.Blocks {
			set.Blocks[i].IsValid = true
		}
		tags.Lock(0, 0)

		victim, ok := finder.FindVictim(tags, 0)

		Expect(ok).To(BeTrue())
		Expect(victim.WayID).To(Equal(1))
	})

	It("should find nothing when every block is locked", func() {
		for i := 0; i < 4; i++ {
			tags.Lock(0, i)
		}

		_, ok := finder.FindVictim(tags, 0)

		Expect(ok).To(BeFalse())
	})
})
