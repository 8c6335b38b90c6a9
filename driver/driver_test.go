package driver_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/driver"
	"github.com/sarchlab/vmsim/trace"
	"github.com/sarchlab/vmsim/vm"
)

func parseTrace(lines ...string) []trace.Event {
	GinkgoHelper()

	events, err := trace.Parse(strings.NewReader(strings.Join(lines, "\n")))
	Expect(err).NotTo(HaveOccurred())
	return events
}

var _ = Describe("Driver", func() {
	var (
		mmu *vm.MMU
		d   *driver.Driver
	)

	BeforeEach(func() {
		mmu = vm.New(vm.DefaultConfig())
		d = driver.New(mmu)
	})

	It("should allocate and access pages", func() {
		results := d.Run(parseTrace(
			"alloc 0 rw",
			"write 0",
			"read 0",
		))

		Expect(results).To(HaveLen(3))
		for _, result := range results {
			Expect(result.Outcome).To(Equal(driver.OutcomeOK))
			Expect(result.Frame).To(Equal(0))
			Expect(result.PID).To(Equal(vm.PID(0)))
		}
	})

	It("should report an error result for an exhausted allocation", func() {
		small := vm.New(vm.Config{
			NumFrames:        1,
			NumPages:         8,
			PTEsPerDirectory: 4,
		})
		d = driver.New(small)

		results := d.Run(parseTrace("alloc 0 r", "alloc 1 r"))

		Expect(results[0].Outcome).To(Equal(driver.OutcomeOK))
		Expect(results[1].Outcome).To(Equal(driver.OutcomeError))
		Expect(results[1].Err).To(MatchError(vm.ErrFrameExhausted))
	})

	It("should report an error result for a bad free", func() {
		result := d.Step(parseTrace("free 5")[0])

		Expect(result.Outcome).To(Equal(driver.OutcomeError))
		Expect(result.Err).To(MatchError(vm.ErrNotMapped))
	})

	It("should segfault on an access to an unmapped page", func() {
		result := d.Step(parseTrace("read 3")[0])

		Expect(result.Outcome).To(Equal(driver.OutcomeSegFault))
		Expect(result.Frame).To(Equal(vm.NoFrame))
	})

	It("should segfault on a write to a read-only page", func() {
		results := d.Run(parseTrace("alloc 0 r", "write 0"))

		Expect(results[1].Outcome).To(Equal(driver.OutcomeSegFault))
	})

	It("should continue after a segfault", func() {
		results := d.Run(parseTrace("read 3", "alloc 0 r", "read 0"))

		Expect(results[0].Outcome).To(Equal(driver.OutcomeSegFault))
		Expect(results[1].Outcome).To(Equal(driver.OutcomeOK))
		Expect(results[2].Outcome).To(Equal(driver.OutcomeOK))
	})

	It("should resolve a copy-on-write fault across a fork", func() {
		results := d.Run(parseTrace(
			"alloc 0 rw",
			"switch 99",
			"write 0",
			"write 0",
		))

		// The forked child's first write triggers the metadata copy.
		Expect(results[2].Outcome).To(Equal(driver.OutcomeCOWResolved))
		Expect(results[2].Frame).To(Equal(1))
		Expect(results[2].PID).To(Equal(vm.PID(99)))

		// The second write goes straight through.
		Expect(results[3].Outcome).To(Equal(driver.OutcomeOK))
		Expect(results[3].Frame).To(Equal(1))
	})

	It("should fault the write-protected parent after a switch back", func() {
		results := d.Run(parseTrace(
			"alloc 0 rw",
			"switch 99",
			"switch 0",
			"write 0",
		))

		// The parent's entry went read-only and private at fork time,
		// so its own write also resolves through copy-on-write.
		Expect(results[3].Outcome).To(Equal(driver.OutcomeCOWResolved))
		Expect(results[3].PID).To(Equal(vm.PID(0)))
	})

	It("should carry the switch target in the result", func() {
		result := d.Step(parseTrace("switch 7")[0])

		Expect(result.Outcome).To(Equal(driver.OutcomeOK))
		Expect(result.PID).To(Equal(vm.PID(7)))
	})

	Describe("WithOutput", func() {
		It("should log one line per event", func() {
			var buf bytes.Buffer
			d = driver.New(mmu, driver.WithOutput(&buf))

			d.Run(parseTrace("alloc 0 rw", "write 0", "switch 1"))

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			Expect(lines).To(HaveLen(3))
			Expect(lines[0]).To(ContainSubstring("alloc 0 -> frame 0"))
			Expect(lines[2]).To(ContainSubstring("[pid 1] switched"))
		})
	})
})
