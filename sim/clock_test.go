package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Clock", func() {
	var clock *Clock

	BeforeEach(func() {
		clock = NewClock(1 * GHz)
	})

	It("should start at cycle 0", func() {
		Expect(clock.CurrentCycle()).To(Equal(uint64(0)))
		Expect(clock.CurrentTime()).To(BeNumerically("==", 0))
	})

	It("should tick", func() {
		clock.Tick()
		clock.Tick()

		Expect(clock.CurrentCycle()).To(Equal(uint64(2)))
		Expect(clock.CurrentTime()).To(BeNumerically("~", 2e-9, 1e-15))
	})

	It("should set cycle", func() {
		clock.SetCycle(100)

		Expect(clock.CurrentCycle()).To(Equal(uint64(100)))
	})

	It("should default to 1GHz", func() {
		Expect(NewClock(0).Freq()).To(Equal(1 * GHz))
	})
})
