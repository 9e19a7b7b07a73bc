package cmd

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const sampleTrace = `# core thread type vaddr size device
0 0 R 0x1000 8 cpu
1 0 W 0x1000 8 gpu
0 0 R 0x2ffc 8 cpu
1 0 R 0x8000 4 gpu
0 0 W 0x1040 4 cpu
`

var _ = Describe("hetmem", func() {
	var (
		dir      string
		out, err *bytes.Buffer
	)

	execute := func(args ...string) error {
		root := NewRootCommand()
		root.SetArgs(args)
		root.SetOut(out)
		root.SetErr(err)

		return root.Execute()
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = new(bytes.Buffer)
		err = new(bytes.Buffer)
	})

	writeTrace := func() string {
		path := filepath.Join(dir, "trace.txt")
		Expect(os.WriteFile(path, []byte(sampleTrace), 0o600)).To(Succeed())

		return path
	}

	It("should print the knobs", func() {
		Expect(execute("knobs")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("HETMEM_L1_SETS=64\n"))
		Expect(out.String()).To(ContainSubstring("HETMEM_PSEUDO_LRU=false\n"))
	})

	It("should run a trace and print the results", func() {
		Expect(execute("run", writeTrace(),
			"--set", "HETMEM_MEMORY_SIZE=16384",
			"--set", "WALK_LATENCY=5")).To(Succeed())

		Expect(out.String()).To(MatchRegexp(`accesses\s+5\n`))
		Expect(out.String()).To(MatchRegexp(`completed\s+5\n`))
		Expect(out.String()).To(MatchRegexp(`truncated\s+false\n`))
	})

	It("should print MMU events when asked", func() {
		Expect(execute("run", writeTrace(), "--log-events")).To(Succeed())

		Expect(err.String()).To(ContainSubstring("Platform.MMU PageFault"))
	})

	It("should stop at the cycle limit", func() {
		Expect(execute("run", writeTrace(), "--max-cycles", "3")).
			To(Succeed())

		Expect(out.String()).To(MatchRegexp(`truncated\s+true\n`))
	})

	It("should record a run and report it", func() {
		db := filepath.Join(dir, "results")

		Expect(execute("run", writeTrace(), "--db", db, "--trace-events")).
			To(Succeed())

		out.Reset()
		Expect(execute("report", db+".sqlite3", "--events", "2")).
			To(Succeed())

		Expect(out.String()).To(ContainSubstring("== summary (1 rows)"))
		Expect(out.String()).To(ContainSubstring("== mmu_stats (1 rows)"))
		Expect(out.String()).To(ContainSubstring("== memory_stats (1 rows)"))
		Expect(out.String()).To(ContainSubstring("== event_counts"))
		Expect(out.String()).To(ContainSubstring("== events"))
	})

	It("should reject bad overrides", func() {
		Expect(execute("run", writeTrace(), "--set", "L1_SETS")).
			To(MatchError(ContainSubstring("NAME=VALUE")))
		Expect(execute("run", writeTrace(), "--set", "L1_SETS=3")).
			NotTo(Succeed())
	})

	It("should report a missing trace", func() {
		Expect(execute("run", filepath.Join(dir, "none.txt"))).
			To(MatchError(ContainSubstring("open trace")))
	})

	It("should report a missing database", func() {
		Expect(execute("report", filepath.Join(dir, "none.sqlite3"))).
			NotTo(Succeed())
	})
})
