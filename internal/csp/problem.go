package csp

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

var (
	ErrDuplicateVariable   = errors.New("duplicate variable")
	ErrUnknownVariable     = errors.New("unknown variable")
	ErrSelfLoopFactor      = errors.New("binary factor over a single variable")
	ErrFactorShapeMismatch = errors.New("factor shape mismatch")
	ErrInvalidDomain       = errors.New("invalid domain")
	ErrInvalidWeight       = errors.New("invalid weight")
	ErrTooLarge            = errors.New("problem exceeds table cell limit")
)

// Var identifies a variable. Kind namespaces the remaining fields so that
// variables introduced by different producers never collide.
type Var struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Slot  string `json:"slot,omitempty"`
	Item  string `json:"item,omitempty"`
	Index int    `json:"index,omitempty"`
}

func (v Var) String() string {
	s := v.Kind + ":" + v.Name
	if v.Slot != "" {
		s += "/" + v.Slot
	}
	if v.Item != "" {
		s += "/" + v.Item
	}
	if v.Index != 0 {
		s += fmt.Sprintf("#%d", v.Index)
	}
	return s
}

// Value is a domain value. Values must be comparable.
type Value = any

type (
	UnaryFunc  func(v Value) float64
	BinaryFunc func(a, b Value) float64
)

// Indicator maps a predicate to a hard 0/1 weight.
func Indicator(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// Reader is the read-only view a solver consumes once construction is done.
// Every slice it returns is a copy owned by the caller.
type Reader interface {
	Variables() []Var
	Domain(v Var) []Value
	// Unary returns weights aligned with Domain(v), or nil if no unary
	// factor was added.
	Unary(v Var) []float64
	// Binary returns the table indexed [index in Domain(v1)][index in
	// Domain(v2)], or nil if the pair is unrelated.
	Binary(v1, v2 Var) [][]float64
	Neighbors(v Var) []Var
}

// Problem is a weighted constraint satisfaction problem: variables with
// ordered domains plus unary and binary factor tables. A weight of 0 forbids
// a value (or pair), any positive weight is a soft preference. Problem is not
// safe for concurrent mutation; once built it may be shared read-only.
type Problem struct {
	vars    []Var
	index   map[Var]int
	domains [][]Value
	unary   [][]float64
	binary  []map[int][][]float64
	adj     [][]int

	// cells counts table entries the way Stats does; limit caps it when > 0.
	cells int
	limit int
}

var _ Reader = (*Problem)(nil)

func New() *Problem {
	return &Problem{index: make(map[Var]int)}
}

// LimitCells makes any factor that would take the problem past n table cells
// fail with ErrTooLarge before its table is allocated. n <= 0 removes the
// limit.
func (p *Problem) LimitCells(n int) {
	p.limit = n
}

// fits reports whether a new table of rows*cols cells stays within the limit.
func (p *Problem) fits(rows, cols int) error {
	if p.limit <= 0 {
		return nil
	}
	left := p.limit - p.cells
	if rows > 0 && cols > left/rows {
		return fmt.Errorf("%w: %d x %d table with %d of %d cells used", ErrTooLarge, rows, cols, p.cells, p.limit)
	}
	return nil
}

// AddVariable registers v with the given domain. The domain is copied.
func (p *Problem) AddVariable(v Var, domain []Value) error {
	if _, ok := p.index[v]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVariable, v)
	}
	seen := make(map[Value]struct{}, len(domain))
	for _, val := range domain {
		if val == nil || !reflect.TypeOf(val).Comparable() {
			return fmt.Errorf("%w: %s: value %v is not comparable", ErrInvalidDomain, v, val)
		}
		if _, dup := seen[val]; dup {
			return fmt.Errorf("%w: %s: value %v appears twice", ErrInvalidDomain, v, val)
		}
		seen[val] = struct{}{}
	}

	p.index[v] = len(p.vars)
	p.vars = append(p.vars, v)
	p.domains = append(p.domains, append([]Value(nil), domain...))
	p.unary = append(p.unary, nil)
	p.binary = append(p.binary, make(map[int][][]float64))
	p.adj = append(p.adj, nil)
	return nil
}

// AddUnaryFactor evaluates f over v's domain and multiplies the result into
// any unary table already present for v.
func (p *Problem) AddUnaryFactor(v Var, f UnaryFunc) error {
	i, ok := p.index[v]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, v)
	}
	dom := p.domains[i]
	if p.unary[i] == nil {
		if err := p.fits(1, len(dom)); err != nil {
			return fmt.Errorf("unary factor on %s: %w", v, err)
		}
	}
	table := make([]float64, len(dom))
	for k, val := range dom {
		w := f(val)
		if err := checkWeight(w); err != nil {
			return fmt.Errorf("unary factor on %s at %v: %w", v, val, err)
		}
		table[k] = w
	}

	current := p.unary[i]
	if current == nil {
		p.unary[i] = table
		p.cells += len(table)
		return nil
	}
	if len(current) != len(table) {
		return fmt.Errorf("%w: unary factor on %s has %d entries, want %d", ErrFactorShapeMismatch, v, len(table), len(current))
	}
	for k := range current {
		current[k] *= table[k]
	}
	return nil
}

// AddBinaryFactor evaluates f over the cross product of v1's and v2's
// domains. The table for (v1, v2) and its transpose for (v2, v1) are merged
// into any existing tables by pointwise multiplication.
func (p *Problem) AddBinaryFactor(v1, v2 Var, f BinaryFunc) error {
	if v1 == v2 {
		return fmt.Errorf("%w: %s", ErrSelfLoopFactor, v1)
	}
	i, ok := p.index[v1]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, v1)
	}
	j, ok := p.index[v2]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, v2)
	}

	dom1, dom2 := p.domains[i], p.domains[j]
	_, exists := p.binary[i][j]
	if !exists {
		if err := p.fits(len(dom1), len(dom2)); err != nil {
			return fmt.Errorf("binary factor on (%s, %s): %w", v1, v2, err)
		}
	}
	table := newTable(len(dom1), len(dom2))
	transposed := newTable(len(dom2), len(dom1))
	for a, x := range dom1 {
		for b, y := range dom2 {
			w := f(x, y)
			if err := checkWeight(w); err != nil {
				return fmt.Errorf("binary factor on (%s, %s) at (%v, %v): %w", v1, v2, x, y, err)
			}
			table[a][b] = w
			transposed[b][a] = w
		}
	}

	// Check both directions before touching either so a failure leaves the
	// pair unchanged.
	if err := p.checkShape(i, j, table); err != nil {
		return err
	}
	if err := p.checkShape(j, i, transposed); err != nil {
		return err
	}
	p.mergeBinary(i, j, table)
	p.mergeBinary(j, i, transposed)
	if !exists {
		p.cells += len(dom1) * len(dom2)
	}
	return nil
}

func (p *Problem) checkShape(i, j int, table [][]float64) error {
	current, ok := p.binary[i][j]
	if !ok {
		return nil
	}
	if len(current) != len(table) {
		return fmt.Errorf("%w: (%s, %s) has %d rows, want %d", ErrFactorShapeMismatch, p.vars[i], p.vars[j], len(table), len(current))
	}
	for a := range current {
		if len(current[a]) != len(table[a]) {
			return fmt.Errorf("%w: (%s, %s) row %d has %d columns, want %d", ErrFactorShapeMismatch, p.vars[i], p.vars[j], a, len(table[a]), len(current[a]))
		}
	}
	return nil
}

func (p *Problem) mergeBinary(i, j int, table [][]float64) {
	current, ok := p.binary[i][j]
	if !ok {
		p.binary[i][j] = table
		p.adj[i] = append(p.adj[i], j)
		return
	}
	for a := range current {
		for b := range current[a] {
			current[a][b] *= table[a][b]
		}
	}
}

func newTable(rows, cols int) [][]float64 {
	cells := make([]float64, rows*cols)
	table := make([][]float64, rows)
	for r := range table {
		table[r] = cells[r*cols : (r+1)*cols : (r+1)*cols]
	}
	return table
}

func checkWeight(w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, w)
	}
	return nil
}

// Has reports whether v has been added.
func (p *Problem) Has(v Var) bool {
	_, ok := p.index[v]
	return ok
}

func (p *Problem) Len() int { return len(p.vars) }

// Variables returns variable keys in insertion order.
func (p *Problem) Variables() []Var {
	return append([]Var(nil), p.vars...)
}

func (p *Problem) Domain(v Var) []Value {
	i, ok := p.index[v]
	if !ok {
		return nil
	}
	return append([]Value(nil), p.domains[i]...)
}

func (p *Problem) Unary(v Var) []float64 {
	i, ok := p.index[v]
	if !ok || p.unary[i] == nil {
		return nil
	}
	return append([]float64(nil), p.unary[i]...)
}

func (p *Problem) Binary(v1, v2 Var) [][]float64 {
	i, ok := p.index[v1]
	if !ok {
		return nil
	}
	j, ok := p.index[v2]
	if !ok {
		return nil
	}
	current, ok := p.binary[i][j]
	if !ok {
		return nil
	}
	table := newTable(len(current), len(p.domains[j]))
	for a := range current {
		copy(table[a], current[a])
	}
	return table
}

func (p *Problem) Neighbors(v Var) []Var {
	i, ok := p.index[v]
	if !ok {
		return nil
	}
	out := make([]Var, len(p.adj[i]))
	for k, j := range p.adj[i] {
		out[k] = p.vars[j]
	}
	return out
}

// IndexOf returns the position of value in v's domain, or -1.
func (p *Problem) IndexOf(v Var, value Value) int {
	i, ok := p.index[v]
	if !ok {
		return -1
	}
	for k, val := range p.domains[i] {
		if val == value {
			return k
		}
	}
	return -1
}

// UnaryWeight returns the unary weight of value for v. Variables without a
// unary factor weigh 1 everywhere in their domain.
func (p *Problem) UnaryWeight(v Var, value Value) (float64, bool) {
	k := p.IndexOf(v, value)
	if k < 0 {
		return 0, false
	}
	table := p.unary[p.index[v]]
	if table == nil {
		return 1, true
	}
	return table[k], true
}

// BinaryWeight returns the weight of (a, b) for the pair (v1, v2). Unrelated
// pairs weigh 1.
func (p *Problem) BinaryWeight(v1, v2 Var, a, b Value) (float64, bool) {
	x, y := p.IndexOf(v1, a), p.IndexOf(v2, b)
	if x < 0 || y < 0 {
		return 0, false
	}
	table, ok := p.binary[p.index[v1]][p.index[v2]]
	if !ok {
		return 1, true
	}
	return table[x][y], true
}

// Stats summarises the size of the problem.
type Stats struct {
	Variables     int `json:"variables"`
	UnaryFactors  int `json:"unary_factors"`
	BinaryFactors int `json:"binary_factors"`
	TableCells    int `json:"table_cells"`
}

func (p *Problem) Stats() Stats {
	var s Stats
	s.Variables = len(p.vars)
	for i := range p.vars {
		if p.unary[i] != nil {
			s.UnaryFactors++
			s.TableCells += len(p.unary[i])
		}
		for j, table := range p.binary[i] {
			// Each relation is stored twice; count it once.
			if j < i {
				continue
			}
			s.BinaryFactors++
			if len(table) > 0 {
				s.TableCells += len(table) * len(table[0])
			}
		}
	}
	return s
}
