package platform

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hetmem/config"
	"github.com/sarchlab/hetmem/datarecording"
	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/mem/vm/mmu"
	"github.com/sarchlab/hetmem/tracing"
	"github.com/sarchlab/hetmem/workload"
)

type sliceSource struct {
	uops []*vm.Uop
	err  error
}

func (s *sliceSource) Next() (*vm.Uop, error) {
	if len(s.uops) == 0 {
		if s.err != nil {
			return nil, s.err
		}

		return nil, io.EOF
	}

	u := s.uops[0]
	s.uops = s.uops[1:]

	return u, nil
}

type countingProgress struct {
	inProgress, finished uint64
}

func (c *countingProgress) IncrementInProgress(n uint64) {
	c.inProgress += n
}

func (c *countingProgress) MoveInProgressToFinished(n uint64) {
	c.inProgress -= n
	c.finished += n
}

func smallKnobs() config.Knobs {
	k := config.DefaultKnobs()
	k.L1Sets, k.L2Sets, k.LLCSets = 4, 8, 16
	k.L1Assoc, k.L2Assoc, k.LLCAssoc = 2, 2, 4
	k.CPUQuota = 2
	k.MemorySize = 4 << 12
	k.TLBEntries = 4
	k.WalkLatency = 2
	k.FaultLatency = 5
	k.EvictionLatency = 3
	k.BatchOverhead = 10

	return k
}

func cpuUop(id, vAddr uint64) *vm.Uop {
	return &vm.Uop{ID: id, CoreID: 0, VAddr: vAddr, Size: 4}
}

func gpuUop(id, vAddr uint64) *vm.Uop {
	return &vm.Uop{
		ID: id, CoreID: 1, VAddr: vAddr, Size: 4,
		IsGPU: true, ApplID: workload.GPUApplID,
	}
}

var _ = Describe("Platform", func() {
	var (
		p   *Platform
		ctx context.Context
	)

	BeforeEach(func() {
		p = MakeBuilder().WithKnobs(smallKnobs()).Build("Platform")
		ctx = context.Background()
	})

	It("should name its components after itself", func() {
		Expect(p.MMU().Name()).To(Equal("Platform.MMU"))
		Expect(p.Memory().Name()).To(Equal("Platform.Memory"))
		Expect(p.Components()).To(HaveLen(3 + len(p.Memory().Engines())))
	})

	It("should panic on invalid knobs", func() {
		k := smallKnobs()
		k.LineSize = 3

		Expect(func() { MakeBuilder().WithKnobs(k).Build("P") }).To(Panic())
	})

	It("should finish an empty trace without running", func() {
		r, err := p.Run(ctx, &sliceSource{})

		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(Result{}))
	})

	It("should fault in a page and complete the access", func() {
		u := cpuUop(1, 0x1234)

		r, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{u}})

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Accesses).To(Equal(uint64(1)))
		Expect(r.Issued).To(Equal(uint64(1)))
		Expect(r.Completed).To(Equal(uint64(1)))
		Expect(r.ImmediateHits).To(Equal(uint64(0)))
		Expect(r.Truncated).To(BeFalse())
		Expect(r.Cycles).To(Equal(u.DoneCycle))

		Expect(u.IsDone()).To(BeTrue())
		Expect(u.Translated).To(BeTrue())
		Expect(u.PAddr & 0xfff).To(Equal(uint64(0x234)))

		stats := p.MMU().Stats()
		Expect(stats.Batches).To(Equal(uint64(1)))
		Expect(stats.PagesServiced).To(Equal(uint64(1)))
		Expect(p.MMU().NumFreeFrames()).To(Equal(3))

		Expect(p.EventCounter().Count("Platform.MMU", mmu.HookPosPageFault)).
			To(Equal(uint64(1)))
	})

	It("should complete accesses to a resident page right away", func() {
		first := cpuUop(1, 0x1000)
		_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{first}})
		Expect(err).NotTo(HaveOccurred())

		second := cpuUop(2, 0x1040)
		r, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{second}})

		Expect(err).NotTo(HaveOccurred())
		Expect(r.ImmediateHits).To(Equal(uint64(1)))
		Expect(second.IsDone()).To(BeTrue())
		Expect(p.MMU().Stats().TLBHits).To(BeNumerically(">=", 1))
	})

	It("should hold immediate hits to the minimum retire latency", func() {
		k := smallKnobs()
		k.MinRetireLatency = 500
		p = MakeBuilder().WithKnobs(k).Build("Platform")

		first := cpuUop(1, 0x1000)
		_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{first}})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.DoneCycle).To(BeNumerically(">=", 500))

		start := p.CurrentCycle()
		second := cpuUop(2, 0x1040)
		r, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{second}})

		Expect(err).NotTo(HaveOccurred())
		Expect(r.ImmediateHits).To(Equal(uint64(1)))
		Expect(second.DoneCycle).To(BeNumerically(">=", start+500))
		Expect(r.Cycles).To(Equal(second.DoneCycle))
	})

	It("should complete a split access once all pieces are done", func() {
		trace := "0 0 R 0xffe 4 cpu\n1 0 W 0x5000 8 gpu\n"
		src := workload.NewReader(strings.NewReader(trace), 12)
		progress := &countingProgress{}
		p.SetProgress(progress)

		r, err := p.Run(ctx, src)

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Accesses).To(Equal(uint64(2)))
		Expect(r.Issued).To(Equal(uint64(3)))
		Expect(r.Completed).To(Equal(uint64(2)))
		Expect(progress.finished).To(Equal(uint64(2)))
		Expect(progress.inProgress).To(Equal(uint64(0)))
	})

	It("should evict pages when memory is full", func() {
		var uops []*vm.Uop
		for i := uint64(0); i < 6; i++ {
			uops = append(uops, cpuUop(i+1, i<<12))
		}

		r, err := p.Run(ctx, &sliceSource{uops: uops})

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Completed).To(Equal(uint64(6)))
		Expect(p.MMU().Stats().Evictions).To(BeNumerically(">=", 2))
		Expect(p.MMU().NumFreeFrames()).To(Equal(0))
		Expect(p.MMU().PageTable().Len()).To(Equal(4))
	})

	It("should reject uops for unknown cores", func() {
		u := cpuUop(1, 0)
		u.CoreID = 7

		_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{u}})

		Expect(err).To(MatchError(ContainSubstring("core 7")))
	})

	It("should reject uops whose device does not match the core", func() {
		u := gpuUop(1, 0)
		u.CoreID = 0

		_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{u}})

		Expect(err).To(MatchError(ContainSubstring("device")))
	})

	It("should report source errors", func() {
		broken := errors.New("broken trace")

		_, err := p.Run(ctx, &sliceSource{err: broken})

		Expect(err).To(MatchError(broken))
	})

	It("should stop at the cycle limit", func() {
		k := smallKnobs()
		k.MaxCycles = 5
		p = MakeBuilder().WithKnobs(k).Build("Platform")

		r, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{cpuUop(1, 0)}})

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Truncated).To(BeTrue())
		Expect(r.Cycles).To(Equal(uint64(5)))
		Expect(r.Completed).To(Equal(uint64(0)))
	})

	It("should stop when the context is canceled while paused", func() {
		ctx, cancel := context.WithCancel(ctx)
		p.Pause()
		Expect(p.IsPaused()).To(BeTrue())

		errs := make(chan error, 1)
		go func() {
			_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{cpuUop(1, 0)}})
			errs <- err
		}()

		Consistently(errs, 50*time.Millisecond).ShouldNot(Receive())
		Expect(p.Status().Cycle).To(Equal(uint64(0)))

		cancel()

		Eventually(errs, time.Second).Should(Receive(MatchError(context.Canceled)))
	})

	It("should report its status", func() {
		_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{cpuUop(1, 0)}})
		Expect(err).NotTo(HaveOccurred())

		var cycle uint64
		p.Inspect(func() { cycle = p.CurrentCycle() })

		s := p.Status()
		Expect(s.Cycle).To(Equal(cycle))
		Expect(s.InFlight).To(Equal(0))
		Expect(s.Queued).To(Equal(0))
		Expect(s.Result.Completed).To(Equal(uint64(1)))
		Expect(s.MMU.PagesServiced).To(Equal(uint64(1)))
		Expect(s.Memory.Accesses).To(BeNumerically(">=", 1))
	})

	It("should print MMU events to the event log", func() {
		buf := new(bytes.Buffer)
		p = MakeBuilder().
			WithKnobs(smallKnobs()).
			WithEventLog(log.New(buf, "", 0)).
			Build("Platform")

		_, err := p.Run(ctx, &sliceSource{uops: []*vm.Uop{cpuUop(1, 0)}})

		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("Platform.MMU PageFault"))
	})

	It("should record results and events", func() {
		db, err := sql.Open("sqlite3", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		db.SetMaxOpenConns(1)
		defer db.Close()

		p = MakeBuilder().
			WithKnobs(smallKnobs()).
			WithRecorder(datarecording.NewWithDB(db)).
			WithEventTrace(true).
			Build("Platform")

		_, err = p.Run(ctx, &sliceSource{uops: []*vm.Uop{cpuUop(1, 0)}})
		Expect(err).NotTo(HaveOccurred())

		reader := datarecording.NewReaderWithDB(db)
		reader.MapTable(SummaryTable, SummaryEntry{})
		reader.MapTable(MMUStatsTable, mmu.Stats{})
		reader.MapTable(tracing.EventTable, tracing.EventEntry{})

		summaries, _, err := reader.Query(ctx, SummaryTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].(*SummaryEntry).Completed).To(Equal(uint64(1)))

		stats, _, err := reader.Query(ctx, MMUStatsTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(stats[0].(*mmu.Stats).PagesServiced).To(Equal(uint64(1)))

		_, faults, err := reader.Query(ctx, tracing.EventTable,
			datarecording.QueryParams{
				Where: "Event = ?",
				Args:  []any{mmu.HookPosPageFault.Name},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(faults).To(Equal(1))

		tables, err := reader.ListStoredTables(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(ContainElements(
			SummaryTable, MMUStatsTable, MemoryStatsTable, EventCountTable,
			tracing.EventTable))
	})
})
