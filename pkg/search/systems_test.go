package search_test

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
)

// chain increments a counter; the property fails when the counter reaches bugAt.
type chain struct {
	x     int
	limit int
	bugAt int
}

func (c *chain) Enabled() []model.Action {
	if c.x >= c.limit {
		return nil
	}

	return []model.Action{"inc"}
}

func (c *chain) Step(model.Action) error {
	c.x++

	return nil
}

func (c *chain) Check() error {
	if c.bugAt > 0 && c.x == c.bugAt {
		return &model.Violation{Property: "below-three"}
	}

	return nil
}

func chainEntry(bugAt int) model.EntryPoint {
	return model.EntryPoint{
		Name: "implementation.Chain.execute",
		New:  func() model.System { return &chain{limit: 20, bugAt: bugAt} },
	}
}

// twoThreads runs two threads that each read a shared counter and write it
// back incremented. With check set the final value must be two.
type twoThreads struct {
	x     int
	local [2]int
	pc    [2]int
	check bool
}

var threadNames = [2]string{"a", "b"}

func (s *twoThreads) Enabled() []model.Action {
	var out []model.Action

	for t, name := range threadNames {
		switch s.pc[t] {
		case 0:
			out = append(out, model.Action(name+".read"))
		case 1:
			out = append(out, model.Action(name+".write"))
		}
	}

	return out
}

func (s *twoThreads) Step(a model.Action) error {
	name, op, _ := strings.Cut(string(a), ".")

	t := 0
	if name == "b" {
		t = 1
	}

	switch op {
	case "read":
		s.local[t] = s.x
	case "write":
		s.x = s.local[t] + 1
	default:
		return errors.New("unknown op")
	}

	s.pc[t]++

	return nil
}

func (s *twoThreads) Check() error {
	if s.check && s.pc[0] == 2 && s.pc[1] == 2 && s.x != 2 {
		return &model.Violation{Property: "no-lost-update"}
	}

	return nil
}

func (s *twoThreads) Dependent(a, b model.Action) bool {
	ta, opA, _ := strings.Cut(string(a), ".")
	tb, opB, _ := strings.Cut(string(b), ".")

	if ta == tb {
		return true
	}

	return opA == "write" || opB == "write"
}

func threadsEntry(check bool) model.EntryPoint {
	return model.EntryPoint{
		Name: "implementation.Threads.execute",
		New:  func() model.System { return &twoThreads{check: check} },
	}
}

// independent runs two threads of purely local steps.
type independent struct {
	pc [2]int
}

func (s *independent) Enabled() []model.Action {
	var out []model.Action

	for t, name := range threadNames {
		if s.pc[t] < 2 {
			out = append(out, model.Action(name+string(rune('1'+s.pc[t]))))
		}
	}

	return out
}

func (s *independent) Step(a model.Action) error {
	if strings.HasPrefix(string(a), "a") {
		s.pc[0]++
	} else {
		s.pc[1]++
	}

	return nil
}

func (s *independent) Check() error { return nil }

func (s *independent) Dependent(a, b model.Action) bool {
	return a[0] == b[0]
}

func (s *independent) Fingerprint() string {
	return string(rune('0'+s.pc[0])) + string(rune('0'+s.pc[1]))
}

func independentEntry() model.EntryPoint {
	return model.EntryPoint{Name: "independent", New: func() model.System { return &independent{} }}
}

// faulty fails its second step with a non-violation error.
type faulty struct{ n int }

func (f *faulty) Enabled() []model.Action { return []model.Action{"go"} }

func (f *faulty) Step(model.Action) error {
	f.n++
	if f.n == 2 {
		return errors.New("disk on fire")
	}

	return nil
}

func (f *faulty) Check() error { return nil }

// doubler runs p, which doubles x, against q, whose first step is local and
// whose second increments x. Whether p and q conflict depends on q's progress.
type doubler struct {
	x     int
	pDone bool
	qpc   int
}

func (s *doubler) Enabled() []model.Action {
	var out []model.Action

	if !s.pDone {
		out = append(out, "p")
	}

	if s.qpc < 2 {
		out = append(out, "q")
	}

	return out
}

func (s *doubler) Step(a model.Action) error {
	switch a {
	case "p":
		s.x *= 2
		s.pDone = true
	case "q":
		if s.qpc == 1 {
			s.x++
		}

		s.qpc++
	default:
		return errors.New("unknown action")
	}

	return nil
}

func (s *doubler) Check() error {
	if s.pDone && s.qpc == 2 && s.x == 4 {
		return &model.Violation{Property: "doubled-after-increment"}
	}

	return nil
}

func (s *doubler) Dependent(_, _ model.Action) bool {
	return s.qpc == 1
}

func (s *doubler) Fingerprint() string {
	return strconv.Itoa(s.x) + "/" + strconv.FormatBool(s.pDone) + "/" + strconv.Itoa(s.qpc)
}

func doublerEntry() model.EntryPoint {
	return model.EntryPoint{Name: "doubler", New: func() model.System { return &doubler{x: 1} }}
}
