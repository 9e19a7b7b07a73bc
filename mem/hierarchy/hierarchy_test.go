package hierarchy

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/sim"
)

var _ = Describe("Hierarchy", func() {
	var (
		mockCtrl   *gomock.Controller
		translator *MockTranslator
		clock      *sim.Clock
		builder    Builder
		h          *Hierarchy
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		translator = NewMockTranslator(mockCtrl)
		clock = sim.NewClock(1 * sim.GHz)

		builder = MakeBuilder().
			WithCycleTeller(clock).
			WithNumCPUCores(1).
			WithNumGPUCores(1).
			WithL1(Geometry{NumSets: 4, Associativity: 2, NumBanks: 2}).
			WithL2(Geometry{NumSets: 8, Associativity: 2, NumBanks: 1}).
			WithLLC(Geometry{NumSets: 8, Associativity: 4, NumBanks: 1}).
			WithLatencies(1, 10, 20, 100).
			WithPortsPerBank(1)
		h = builder.Build("Mem")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should build the caches of every core", func() {
		Expect(h.NumCores()).To(Equal(2))
		Expect(h.IsGPUCore(0)).To(BeFalse())
		Expect(h.IsGPUCore(1)).To(BeTrue())
		Expect(h.Engines()).To(HaveLen(5))
		Expect(h.LLC().IsPartitioned()).To(BeFalse())
		Expect(h.L1(1).Name()).To(Equal("Mem.Core[1].L1"))
	})

	It("should return -1 when the address is not translated", func() {
		h.SetTranslator(translator)
		uop := &vm.Uop{VAddr: 0x1000}
		translator.EXPECT().Translate(uop).Return(false)

		Expect(h.Access(uop)).To(Equal(-1))
		Expect(h.Stats().Accesses).To(Equal(uint64(0)))
	})

	It("should access the physical address", func() {
		h.SetTranslator(translator)
		uop := &vm.Uop{VAddr: 0x1000}
		translator.EXPECT().Translate(uop).
			DoAndReturn(func(u *vm.Uop) bool {
				u.PAddr = 0x5000
				u.Translated = true
				return true
			})

		Expect(h.Access(uop)).To(Equal(1 + 10 + 20 + 100))
		Expect(h.L1(0).Access(0x5000, false, 0).Hit).To(BeTrue())
		Expect(h.L1(0).Access(0x1000, false, 0).Hit).To(BeFalse())
	})

	It("should fill every level on a miss", func() {
		uop := &vm.Uop{VAddr: 0x1000}

		Expect(h.Access(uop)).To(Equal(131))
		clock.Tick()
		Expect(h.Access(uop)).To(Equal(1))

		Expect(h.L2(0).Access(0x1000, false, 0).Hit).To(BeTrue())
		Expect(h.LLC().Access(0x1000, false, 0).Hit).To(BeTrue())

		stats := h.Stats()
		Expect(stats.Accesses).To(Equal(uint64(2)))
		Expect(stats.L1Hits).To(Equal(uint64(1)))
		Expect(stats.DRAMAccesses).To(Equal(uint64(1)))
	})

	It("should hit in the shared LLC from another core", func() {
		Expect(h.Access(&vm.Uop{CoreID: 0, VAddr: 0x1000})).To(Equal(131))
		clock.Tick()

		latency := h.Access(&vm.Uop{CoreID: 1, VAddr: 0x1000, IsGPU: true})

		Expect(latency).To(Equal(31))
		Expect(h.Stats().LLCHits).To(Equal(uint64(1)))
	})

	It("should refuse an access when the bank port is taken", func() {
		Expect(h.Access(&vm.Uop{VAddr: 0x1000})).To(BeNumerically(">", 0))
		Expect(h.Access(&vm.Uop{VAddr: 0x1080})).To(Equal(0))
		Expect(h.Access(&vm.Uop{VAddr: 0x1040})).To(BeNumerically(">", 0))

		clock.Tick()
		Expect(h.Access(&vm.Uop{VAddr: 0x1080})).To(BeNumerically(">", 0))
		Expect(h.Stats().BankConflicts).To(Equal(uint64(1)))
	})

	It("should mark stores dirty and write back on invalidation", func() {
		Expect(h.Access(&vm.Uop{VAddr: 0x1000, IsStore: true})).
			To(BeNumerically(">", 0))
		clock.Tick()
		Expect(h.Access(&vm.Uop{VAddr: 0x1FC0})).To(BeNumerically(">", 0))

		h.Invalidate(0x1000)

		for _, e := range h.Engines() {
			Expect(e.Access(0x1000, false, 0).Hit).To(BeFalse())
			Expect(e.Access(0x1FC0, false, 0).Hit).To(BeFalse())
		}
		Expect(h.Stats().WriteBacks).To(Equal(uint64(1)))
		Expect(h.Stats().Invalidations).To(Equal(uint64(1)))
	})

	It("should leave other pages alone on invalidation", func() {
		h.Access(&vm.Uop{VAddr: 0x2000})

		h.Invalidate(0x1000)

		Expect(h.L1(0).Access(0x2000, false, 0).Hit).To(BeTrue())
	})

	It("should panic on an unknown core", func() {
		Expect(func() { h.Access(&vm.Uop{CoreID: 5}) }).To(Panic())
	})

	Context("with a partitioned LLC", func() {
		BeforeEach(func() {
			h = builder.
				WithLLC(Geometry{NumSets: 1, Associativity: 4}).
				WithStaticPartition(true, 1).
				WithPortsPerBank(0).
				Build("Mem")
		})

		It("should keep CPU lines within the quota", func() {
			for i := uint64(0); i < 4; i++ {
				clock.Tick()
				h.Access(&vm.Uop{CoreID: 0, VAddr: i * 0x1000})
			}

			set := h.LLC().Set(0)
			Expect(h.LLC().IsPartitioned()).To(BeTrue())
			Expect(set.NumCPULines).To(Equal(1))
			Expect(set.NumGPULines).To(Equal(0))
		})
	})
})
