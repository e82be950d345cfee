// Package solver searches a weighted CSP for its highest-weight consistent
// assignment. It reads the problem only through csp.Reader and never mutates
// it. Search is iterative with an explicit stack, so problem size is not
// bounded by goroutine stack depth.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
)

var (
	ErrNoSolution = errors.New("no consistent assignment")
	ErrInvalidPin = errors.New("invalid pinned value")
)

const ctxCheckEvery = 1024

type Mode int

const (
	// ModeBest explores the whole space and keeps the maximum-weight
	// assignment.
	ModeBest Mode = iota
	// ModeFirst stops at the first consistent assignment.
	ModeFirst
)

func (m Mode) String() string {
	switch m {
	case ModeBest:
		return "best"
	case ModeFirst:
		return "first"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "best" and "first".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "best":
		return ModeBest, nil
	case "first":
		return ModeFirst, nil
	}
	return 0, fmt.Errorf("unknown search mode %q", s)
}

type Options struct {
	Mode Mode
	// MaxNodes bounds the number of value assignments tried. Zero means no
	// bound.
	MaxNodes int
	// Pinned fixes variables to values before search starts.
	Pinned map[csp.Var]csp.Value
}

type Result struct {
	Assignment map[csp.Var]csp.Value
	Weight     float64
	Nodes      int
	Solutions  int
	// Exhausted is true when every branch was explored, so the returned
	// assignment is optimal (ModeBest) or ErrNoSolution is definitive.
	Exhausted bool
	Duration  time.Duration
}

type Solver struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Solver {
	return &Solver{logger: logger}
}

type neighbor struct {
	j     int
	table [][]float64
}

type candidate struct {
	index  int
	weight float64
}

type frame struct {
	v     int
	cands []candidate
	next  int
	base  float64
}

type state struct {
	vars     []csp.Var
	domains  [][]csp.Value
	unary    [][]float64
	adj      [][]neighbor
	assigned []int
	count    int
}

func newState(r csp.Reader) *state {
	vars := r.Variables()
	index := make(map[csp.Var]int, len(vars))
	for i, v := range vars {
		index[v] = i
	}
	st := &state{
		vars:     vars,
		domains:  make([][]csp.Value, len(vars)),
		unary:    make([][]float64, len(vars)),
		adj:      make([][]neighbor, len(vars)),
		assigned: make([]int, len(vars)),
	}
	for i, v := range vars {
		st.domains[i] = r.Domain(v)
		st.unary[i] = r.Unary(v)
		st.assigned[i] = -1
		for _, n := range r.Neighbors(v) {
			j, ok := index[n]
			if !ok {
				continue
			}
			st.adj[i] = append(st.adj[i], neighbor{j: j, table: r.Binary(v, n)})
		}
	}
	return st
}

// delta is the factor weight gained by setting variable i to value k given
// the current partial assignment.
func (st *state) delta(i, k int) float64 {
	w := 1.0
	if u := st.unary[i]; u != nil {
		w = u[k]
	}
	for _, n := range st.adj[i] {
		if w == 0 {
			break
		}
		if a := st.assigned[n.j]; a >= 0 {
			w *= n.table[k][a]
		}
	}
	return w
}

func (st *state) candidates(i int) []candidate {
	var out []candidate
	for k := range st.domains[i] {
		if w := st.delta(i, k); w > 0 {
			out = append(out, candidate{index: k, weight: w})
		}
	}
	return out
}

// selectVariable picks the unassigned variable with the fewest consistent
// values, stopping early on a dead end.
func (st *state) selectVariable() (int, []candidate) {
	best, bestCands := -1, []candidate(nil)
	for i := range st.vars {
		if st.assigned[i] >= 0 {
			continue
		}
		cands := st.candidates(i)
		if best < 0 || len(cands) < len(bestCands) {
			best, bestCands = i, cands
			if len(cands) == 0 {
				break
			}
		}
	}
	return best, bestCands
}

func (st *state) assign(i, k int) {
	st.assigned[i] = k
	st.count++
}

func (st *state) unassign(i int) {
	st.assigned[i] = -1
	st.count--
}

// Solve searches r. It returns ErrNoSolution when no consistent assignment
// was found. When ctx ends or MaxNodes is reached after a solution was
// found, the best assignment so far is returned with Exhausted false; before
// any solution, ctx.Err() is returned.
func (s *Solver) Solve(ctx context.Context, r csp.Reader, opts Options) (*Result, error) {
	start := time.Now()
	st := newState(r)
	res := &Result{Exhausted: true}

	weight := 1.0
	for i, v := range st.vars {
		val, ok := opts.Pinned[v]
		if !ok {
			continue
		}
		k := indexOf(st.domains[i], val)
		if k < 0 {
			return nil, fmt.Errorf("%w: %v not in domain of %s", ErrInvalidPin, val, v)
		}
		d := st.delta(i, k)
		if d == 0 {
			res.Duration = time.Since(start)
			return res, ErrNoSolution
		}
		st.assign(i, k)
		weight *= d
	}
	for v := range opts.Pinned {
		if indexOfVar(st.vars, v) < 0 {
			return nil, fmt.Errorf("%w: unknown variable %s", ErrInvalidPin, v)
		}
	}

	var best []int
	found := false
	bestWeight := 0.0
	record := func(w float64) {
		res.Solutions++
		if !found || w > bestWeight {
			best = append(best[:0], st.assigned...)
			bestWeight = w
			found = true
		}
	}

	var stack []frame
	if st.count == len(st.vars) {
		record(weight)
	} else if v, cands := st.selectVariable(); len(cands) > 0 {
		stack = append(stack, frame{v: v, cands: cands, base: weight})
	}

search:
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next > 0 {
			st.unassign(top.v)
		}
		if top.next == len(top.cands) {
			stack = stack[:len(stack)-1]
			continue
		}
		c := top.cands[top.next]
		top.next++
		st.assign(top.v, c.index)
		res.Nodes++
		w := top.base * c.weight

		if st.count == len(st.vars) {
			record(w)
			if opts.Mode == ModeFirst {
				res.Exhausted = false
				break search
			}
		}
		if opts.MaxNodes > 0 && res.Nodes >= opts.MaxNodes {
			res.Exhausted = false
			break search
		}
		if res.Nodes%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				if !found {
					return nil, err
				}
				res.Exhausted = false
				break search
			}
		}
		if st.count == len(st.vars) {
			continue
		}

		v, cands := st.selectVariable()
		if len(cands) == 0 {
			continue
		}
		stack = append(stack, frame{v: v, cands: cands, base: w})
	}

	res.Duration = time.Since(start)
	if s.logger != nil {
		s.logger.Debug("search finished",
			"variables", len(st.vars),
			"nodes", res.Nodes,
			"solutions", res.Solutions,
			"exhausted", res.Exhausted,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	if !found {
		return res, ErrNoSolution
	}

	res.Weight = bestWeight
	res.Assignment = make(map[csp.Var]csp.Value, len(best))
	for i, k := range best {
		res.Assignment[st.vars[i]] = st.domains[i][k]
	}
	return res, nil
}

func indexOf(domain []csp.Value, val csp.Value) int {
	for k, x := range domain {
		if x == val {
			return k
		}
	}
	return -1
}

func indexOfVar(vars []csp.Var, v csp.Var) int {
	for i, x := range vars {
		if x == v {
			return i
		}
	}
	return -1
}
