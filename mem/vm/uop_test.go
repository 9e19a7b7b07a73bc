package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Uop", func() {
	var nextID func() uint64

	BeforeEach(func() {
		id := uint64(100)
		nextID = func() uint64 {
			id++
			return id
		}
	})

	It("should not split an access within a page", func() {
		uop := &Uop{VAddr: 0x1000, Size: 64}

		Expect(uop.Split(12, nextID)).To(BeEmpty())
		Expect(uop.IsParent()).To(BeFalse())
	})

	It("should split an access that ends at the top of memory", func() {
		uop := &Uop{VAddr: 0xFFFFFFFFFFFFEFF0, Size: 0x1010}

		children := uop.Split(12, nextID)

		Expect(children).To(HaveLen(2))
		Expect(children[0].Size).To(Equal(0x10))
		Expect(children[1].VAddr).To(Equal(uint64(0xFFFFFFFFFFFFF000)))
		Expect(children[1].Size).To(Equal(0x1000))
	})

	It("should panic on an access that wraps around", func() {
		uop := &Uop{VAddr: 0xFFFFFFFFFFFFFFF0, Size: 32}

		Expect(func() { uop.Split(12, nextID) }).To(Panic())
	})

	It("should split an access that crosses a page", func() {
		uop := &Uop{ID: 1, CoreID: 2, VAddr: 0x1FF0, Size: 32, IsStore: true}

		children := uop.Split(12, nextID)

		Expect(children).To(HaveLen(2))
		Expect(uop.IsParent()).To(BeTrue())
		Expect(uop.NumChildUops).To(Equal(2))

		Expect(children[0].VAddr).To(Equal(uint64(0x1FF0)))
		Expect(children[0].Size).To(Equal(16))
		Expect(children[1].VAddr).To(Equal(uint64(0x2000)))
		Expect(children[1].Size).To(Equal(16))

		for _, c := range children {
			Expect(c.Parent).To(BeIdenticalTo(uop))
			Expect(c.CoreID).To(Equal(2))
			Expect(c.IsStore).To(BeTrue())
		}
		Expect(children[0].ID).NotTo(Equal(children[1].ID))
	})

	It("should name states", func() {
		Expect(StateTransFaultRetryQueue.String()).
			To(Equal("TRANS_FAULT_RETRY_QUEUE"))
		Expect(UopState(42).String()).To(Equal("UopState(42)"))
	})
})
