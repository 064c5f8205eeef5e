package models

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
)

// PropertyNoLostUpdate holds when both workers finished and the counter
// equals the number of workers.
const PropertyNoLostUpdate = "no-lost-update"

var workers = []string{"w1", "w2"}

// counter is two workers incrementing a shared counter. Without the lock the
// read and the write of one worker may interleave with the other worker.
type counter struct {
	locked bool
	value  int
	owner  int
	pc     []int
	local  []int
}

// Program counters of one worker.
const (
	pcAcquire = iota
	pcRead
	pcWrite
	pcRelease
	pcDone
)

func newCounter(locked bool) *counter {
	c := &counter{
		locked: locked,
		owner:  -1,
		pc:     make([]int, len(workers)),
		local:  make([]int, len(workers)),
	}

	if !locked {
		for i := range c.pc {
			c.pc[i] = pcRead
		}
	}

	return c
}

func (c *counter) Enabled() []model.Action {
	var out []model.Action

	for i, w := range workers {
		switch c.pc[i] {
		case pcAcquire:
			if c.owner < 0 {
				out = append(out, model.Action(w+".acquire"))
			}
		case pcRead:
			out = append(out, model.Action(w+".read"))
		case pcWrite:
			out = append(out, model.Action(w+".write"))
		case pcRelease:
			out = append(out, model.Action(w+".release"))
		}
	}

	return out
}

func (c *counter) Step(a model.Action) error {
	worker, op, ok := strings.Cut(string(a), ".")
	if !ok {
		return fmt.Errorf("malformed action %q", a)
	}

	i := indexOf(worker)
	if i < 0 {
		return fmt.Errorf("unknown worker %q", worker)
	}

	switch op {
	case "acquire":
		c.owner = i
		c.pc[i] = pcRead
	case "read":
		c.local[i] = c.value
		c.pc[i] = pcWrite
	case "write":
		c.value = c.local[i] + 1
		c.pc[i] = pcRelease

		if !c.locked {
			c.pc[i] = pcDone
		}
	case "release":
		c.owner = -1
		c.pc[i] = pcDone
	default:
		return fmt.Errorf("unknown operation %q", op)
	}

	return nil
}

func (c *counter) Check() error {
	for _, pc := range c.pc {
		if pc != pcDone {
			return nil
		}
	}

	if c.value != len(workers) {
		return &model.Violation{
			Property: PropertyNoLostUpdate,
			Detail:   fmt.Sprintf("counter is %d after %d increments", c.value, len(workers)),
		}
	}

	return nil
}

// Dependent treats actions of one worker, lock operations and any pair
// involving a write as conflicting.
func (c *counter) Dependent(a, b model.Action) bool {
	wa, opA, _ := strings.Cut(string(a), ".")
	wb, opB, _ := strings.Cut(string(b), ".")

	if wa == wb {
		return true
	}

	if isLockOp(opA) || isLockOp(opB) {
		return true
	}

	return opA == "write" || opB == "write"
}

// Fingerprint identifies the counter state.
func (c *counter) Fingerprint() string {
	return fmt.Sprintf("%v/%v/%d/%d", c.pc, c.local, c.value, c.owner)
}

func isLockOp(op string) bool {
	return op == "acquire" || op == "release"
}

func indexOf(worker string) int {
	for i, w := range workers {
		if w == worker {
			return i
		}
	}

	return -1
}

// LostUpdate is the shared counter model with a racy and a locked increment.
func LostUpdate() model.Model {
	return model.Model{
		Name: "examples.LostUpdate",
		EntryPoints: []model.EntryPoint{
			{
				Name:        "implementation.RacyIncrement.execute",
				Description: "two workers increment without synchronization",
				New:         func() model.System { return newCounter(false) },
			},
			{
				Name:        "implementation.LockedIncrement.execute",
				Description: "two workers increment under a mutex",
				New:         func() model.System { return newCounter(true) },
			},
		},
	}
}
