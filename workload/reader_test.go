package workload

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hetmem/mem/vm"
)

func readAll(r *Reader) ([]*vm.Uop, error) {
	var uops []*vm.Uop

	for {
		u, err := r.Next()
		if err == io.EOF {
			return uops, nil
		}

		if err != nil {
			return uops, err
		}

		uops = append(uops, u)
	}
}

var _ = Describe("Reader", func() {
	It("should parse accesses and skip comments", func() {
		trace := `# core thread type addr size device
0 1 R 0x1000 8 cpu

2 0 w 2040 4 GPU   # store from the GPU
`
		uops, err := readAll(NewReader(strings.NewReader(trace), 12))

		Expect(err).NotTo(HaveOccurred())
		Expect(uops).To(HaveLen(2))

		Expect(uops[0].CoreID).To(Equal(0))
		Expect(uops[0].ThreadID).To(Equal(1))
		Expect(uops[0].IsStore).To(BeFalse())
		Expect(uops[0].VAddr).To(Equal(uint64(0x1000)))
		Expect(uops[0].Size).To(Equal(8))
		Expect(uops[0].IsGPU).To(BeFalse())
		Expect(uops[0].ApplID).To(Equal(CPUApplID))

		Expect(uops[1].CoreID).To(Equal(2))
		Expect(uops[1].IsStore).To(BeTrue())
		Expect(uops[1].VAddr).To(Equal(uint64(0x2040)))
		Expect(uops[1].IsGPU).To(BeTrue())
		Expect(uops[1].ApplID).To(Equal(GPUApplID))

		Expect(uops[0].ID).NotTo(Equal(uops[1].ID))
	})

	It("should split an access that crosses a page", func() {
		trace := "0 0 R 0xffc 8 cpu\n0 0 R 0x3000 4 cpu\n"
		uops, err := readAll(NewReader(strings.NewReader(trace), 12))

		Expect(err).NotTo(HaveOccurred())
		Expect(uops).To(HaveLen(3))

		parent := uops[0].Parent
		Expect(parent).NotTo(BeNil())
		Expect(uops[1].Parent).To(BeIdenticalTo(parent))
		Expect(parent.NumChildUops).To(Equal(2))
		Expect(uops[0].VAddr).To(Equal(uint64(0xffc)))
		Expect(uops[0].Size).To(Equal(4))
		Expect(uops[1].VAddr).To(Equal(uint64(0x1000)))
		Expect(uops[1].Size).To(Equal(4))

		Expect(uops[2].Parent).To(BeNil())
		Expect(uops[2].VAddr).To(Equal(uint64(0x3000)))
	})

	DescribeTable("should reject malformed lines",
		func(line string) {
			r := NewReader(strings.NewReader("0 0 R 0x0 4 cpu\n"+line+"\n"), 12)

			_, err := r.Next()
			Expect(err).NotTo(HaveOccurred())

			_, err = r.Next()
			Expect(err).To(MatchError(ContainSubstring("trace line 2")))
		},
		Entry("too few fields", "0 0 R 0x0 4"),
		Entry("bad core", "x 0 R 0x0 4 cpu"),
		Entry("negative thread", "0 -1 R 0x0 4 cpu"),
		Entry("bad type", "0 0 X 0x0 4 cpu"),
		Entry("bad address", "0 0 R 0xzz 4 cpu"),
		Entry("zero size", "0 0 R 0x0 0 cpu"),
		Entry("bad device", "0 0 R 0x0 4 npu"),
		Entry("wrapping address", "0 0 R 0xfffffffffffffff0 32 cpu"),
		Entry("access over a page", "0 0 R 0x0 4097 cpu"),
	)

	It("should accept an access that ends at the top of memory", func() {
		trace := "0 0 R 0xfffffffffffffff0 16 cpu\n"
		uops, err := readAll(NewReader(strings.NewReader(trace), 12))

		Expect(err).NotTo(HaveOccurred())
		Expect(uops).To(HaveLen(1))
		Expect(uops[0].Parent).To(BeNil())
	})

	It("should open trace files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace.txt")
		Expect(os.WriteFile(path, []byte("1 0 W 10 4 gpu\n"), 0o600)).
			To(Succeed())

		r, err := Open(path, 12)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		uops, err := readAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(uops).To(HaveLen(1))
		Expect(uops[0].VAddr).To(Equal(uint64(0x10)))
	})

	It("should report missing trace files", func() {
		_, err := Open(filepath.Join(GinkgoT().TempDir(), "none"), 12)

		Expect(err).To(MatchError(ContainSubstring("open trace")))
	})
})
