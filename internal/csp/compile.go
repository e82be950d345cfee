package csp

import (
	"fmt"
	"sort"
)

// Kinds reserved for variables introduced by the gadgets below.
const (
	KindOr  = "or"
	KindSum = "sum"

	aggregated = "aggregated"
)

// OrState is the domain of an OR-chain auxiliary variable.
type OrState uint8

const (
	// OrPrev: some earlier input already took the target value.
	OrPrev OrState = iota
	// OrEquals: the input at this position takes the target value.
	OrEquals
	// OrNo: no input up to and including this position does.
	OrNo
)

func (s OrState) String() string {
	switch s {
	case OrPrev:
		return "prev"
	case OrEquals:
		return "equals"
	case OrNo:
		return "no"
	}
	return fmt.Sprintf("OrState(%d)", uint8(s))
}

var orDomain = []Value{OrPrev, OrEquals, OrNo}

// SumPair is the domain of a SUM-chain auxiliary variable: the running total
// before and after folding in one input.
type SumPair struct {
	Before int
	After  int
}

func (s SumPair) String() string { return fmt.Sprintf("(%d,%d)", s.Before, s.After) }

// OrVar returns the result variable CompileOr creates for name.
func OrVar(name string) Var { return Var{Kind: KindOr, Name: name, Item: aggregated} }

// SumVar returns the result variable CompileSum creates for name.
func SumVar(name string) Var { return Var{Kind: KindSum, Name: name, Item: aggregated} }

func orAux(name string, i int) Var  { return Var{Kind: KindOr, Name: name, Index: i} }
func sumAux(name string, i int) Var { return Var{Kind: KindSum, Name: name, Index: i} }

// CompileOr adds a boolean variable that is true iff at least one of vars
// takes target. The n-ary disjunction is lowered to a chain of n auxiliary
// variables joined by binary factors:
//
//	A0 --- A1 --- ... --- An-1 --- result
//	|      |              |
//	X0     X1             Xn-1
//
// With no inputs the result is forced false. The caller decides whether to
// require the result to be true.
func CompileOr(p *Problem, name string, vars []Var, target Value) (Var, error) {
	for _, x := range vars {
		if !p.Has(x) {
			return Var{}, fmt.Errorf("or %q: %w: %s", name, ErrUnknownVariable, x)
		}
	}

	result := OrVar(name)
	if err := p.AddVariable(result, []Value{true, false}); err != nil {
		return Var{}, fmt.Errorf("or %q: %w", name, err)
	}

	if len(vars) == 0 {
		if err := p.AddUnaryFactor(result, func(v Value) float64 { return Indicator(v == false) }); err != nil {
			return Var{}, fmt.Errorf("or %q: %w", name, err)
		}
		return result, nil
	}

	var prev Var
	for i, x := range vars {
		aux := orAux(name, i)
		if err := p.AddVariable(aux, orDomain); err != nil {
			return Var{}, fmt.Errorf("or %q: %w", name, err)
		}
		if err := p.AddBinaryFactor(x, aux, orInputFactor(target)); err != nil {
			return Var{}, fmt.Errorf("or %q: %w", name, err)
		}
		if i == 0 {
			// Nothing precedes the first position.
			err := p.AddUnaryFactor(aux, func(b Value) float64 { return Indicator(b != OrPrev) })
			if err != nil {
				return Var{}, fmt.Errorf("or %q: %w", name, err)
			}
		} else if err := p.AddBinaryFactor(prev, aux, orChainFactor); err != nil {
			return Var{}, fmt.Errorf("or %q: %w", name, err)
		}
		prev = aux
	}

	err := p.AddBinaryFactor(prev, result, func(b, res Value) float64 {
		return Indicator(res == (b != OrNo))
	})
	if err != nil {
		return Var{}, fmt.Errorf("or %q: %w", name, err)
	}
	return result, nil
}

// orInputFactor ties an input to its auxiliary: equals iff input == target.
// target is bound by value so each table is built from its own copy.
func orInputFactor(target Value) BinaryFunc {
	return func(x, b Value) float64 {
		if x == target {
			return Indicator(b == OrEquals)
		}
		return Indicator(b != OrEquals)
	}
}

// orChainFactor enforces monotone accumulation along the chain.
func orChainFactor(b1, b2 Value) float64 {
	if b1 == OrEquals || b1 == OrPrev {
		return Indicator(b2 != OrNo)
	}
	return Indicator(b2 != OrPrev)
}

// CompileSum adds an integer variable whose domain is the set of totals
// within [0, maxSum] the inputs can actually reach. It is consistent with an
// assignment iff it equals the sum of the values assigned to vars. Every
// input domain must consist of non-negative ints.
//
// Each auxiliary variable Ai ranges over the (before, after) running-sum
// pairs actually reachable after folding in X0..Xi, pruned to after <=
// maxSum. A running sum that would exceed maxSum therefore has no value in
// Ai's domain at all rather than being clamped. No domain is sized by maxSum
// itself.
func CompileSum(p *Problem, name string, vars []Var, maxSum int) (Var, error) {
	if maxSum < 0 {
		return Var{}, fmt.Errorf("sum %q: %w: negative bound %d", name, ErrInvalidDomain, maxSum)
	}
	inputs := make([][]int, len(vars))
	for i, x := range vars {
		if !p.Has(x) {
			return Var{}, fmt.Errorf("sum %q: %w: %s", name, ErrUnknownVariable, x)
		}
		dom, err := intDomain(p.Domain(x))
		if err != nil {
			return Var{}, fmt.Errorf("sum %q: %s: %w", name, x, err)
		}
		inputs[i] = dom
	}

	// Every pair needs at least one cell in the tables built below.
	budget := -1
	if p.limit > 0 {
		budget = max(p.limit-p.cells, 0)
	}
	reachable := []int{0}
	chain := make([][]Value, len(vars))
	for i := range vars {
		var ok bool
		chain[i], reachable, ok = foldReachable(reachable, inputs[i], maxSum, budget)
		if !ok {
			return Var{}, fmt.Errorf("sum %q: %w: running totals after %d inputs exceed %d cells", name, ErrTooLarge, i+1, p.limit)
		}
		if budget >= 0 {
			budget -= len(chain[i])
		}
	}

	result := SumVar(name)
	resultDomain := make([]Value, len(reachable))
	for k, total := range reachable {
		resultDomain[k] = total
	}
	if err := p.AddVariable(result, resultDomain); err != nil {
		return Var{}, fmt.Errorf("sum %q: %w", name, err)
	}

	if len(vars) == 0 {
		if err := p.AddUnaryFactor(result, func(v Value) float64 { return Indicator(v == 0) }); err != nil {
			return Var{}, fmt.Errorf("sum %q: %w", name, err)
		}
		return result, nil
	}

	var prev Var
	for i, x := range vars {
		aux := sumAux(name, i)
		if err := p.AddVariable(aux, chain[i]); err != nil {
			return Var{}, fmt.Errorf("sum %q: %w", name, err)
		}
		if err := p.AddBinaryFactor(x, aux, sumInputFactor); err != nil {
			return Var{}, fmt.Errorf("sum %q: %w", name, err)
		}
		if i == 0 {
			err := p.AddUnaryFactor(aux, func(b Value) float64 { return Indicator(b.(SumPair).Before == 0) })
			if err != nil {
				return Var{}, fmt.Errorf("sum %q: %w", name, err)
			}
		} else if err := p.AddBinaryFactor(prev, aux, sumChainFactor); err != nil {
			return Var{}, fmt.Errorf("sum %q: %w", name, err)
		}
		prev = aux
	}

	err := p.AddBinaryFactor(prev, result, func(b, res Value) float64 {
		return Indicator(b.(SumPair).After == res.(int))
	})
	if err != nil {
		return Var{}, fmt.Errorf("sum %q: %w", name, err)
	}
	return result, nil
}

// foldReachable extends every reachable running total by every input value,
// dropping totals above maxSum. It returns the auxiliary domain and the new
// set of reachable totals, both in ascending order. It gives up once there
// are more than limit pairs; a negative limit means no limit.
func foldReachable(reachable, values []int, maxSum, limit int) ([]Value, []int, bool) {
	var pairs []Value
	seenPair := make(map[SumPair]struct{})
	seenAfter := make(map[int]struct{})
	var afters []int
	for _, before := range reachable {
		for _, d := range values {
			if d > maxSum-before {
				continue
			}
			after := before + d
			pair := SumPair{Before: before, After: after}
			if _, ok := seenPair[pair]; ok {
				continue
			}
			seenPair[pair] = struct{}{}
			pairs = append(pairs, pair)
			if limit >= 0 && len(pairs) > limit {
				return nil, nil, false
			}
			if _, ok := seenAfter[after]; !ok {
				seenAfter[after] = struct{}{}
				afters = append(afters, after)
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := pairs[a].(SumPair), pairs[b].(SumPair)
		if pa.Before != pb.Before {
			return pa.Before < pb.Before
		}
		return pa.After < pb.After
	})
	sort.Ints(afters)
	return pairs, afters, true
}

func sumInputFactor(x, b Value) float64 {
	pair := b.(SumPair)
	return Indicator(pair.After == pair.Before+x.(int))
}

func sumChainFactor(b1, b2 Value) float64 {
	return Indicator(b1.(SumPair).After == b2.(SumPair).Before)
}

func intDomain(dom []Value) ([]int, error) {
	out := make([]int, len(dom))
	for k, v := range dom {
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("%w: value %v is not an int", ErrInvalidDomain, v)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: value %d is negative", ErrInvalidDomain, n)
		}
		out[k] = n
	}
	return out, nil
}
