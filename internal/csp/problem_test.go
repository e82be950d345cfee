package csp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolVar(name string) Var { return Var{Kind: "test", Name: name} }

func TestAddVariableDuplicate(t *testing.T) {
	p := New()
	v := boolVar("x")
	require.NoError(t, p.AddVariable(v, []Value{true, false}))

	err := p.AddVariable(v, []Value{1, 2, 3})
	require.ErrorIs(t, err, ErrDuplicateVariable)
	assert.Equal(t, []Value{true, false}, p.Domain(v), "failed add must not replace the domain")
	assert.Equal(t, 1, p.Len())
}

func TestAddVariableInvalidDomain(t *testing.T) {
	t.Run("duplicate value", func(t *testing.T) {
		p := New()
		err := p.AddVariable(boolVar("x"), []Value{1, 2, 1})
		assert.ErrorIs(t, err, ErrInvalidDomain)
		assert.False(t, p.Has(boolVar("x")))
	})

	t.Run("non comparable value", func(t *testing.T) {
		p := New()
		err := p.AddVariable(boolVar("x"), []Value{[]int{1}})
		assert.ErrorIs(t, err, ErrInvalidDomain)
	})

	t.Run("empty domain allowed", func(t *testing.T) {
		p := New()
		require.NoError(t, p.AddVariable(boolVar("x"), nil))
		assert.Empty(t, p.Domain(boolVar("x")))
	})
}

func TestAddVariableCopiesDomain(t *testing.T) {
	p := New()
	dom := []Value{1, 2}
	require.NoError(t, p.AddVariable(boolVar("x"), dom))
	dom[0] = 99
	assert.Equal(t, []Value{1, 2}, p.Domain(boolVar("x")))
}

func TestUnaryFactorsMultiply(t *testing.T) {
	p := New()
	v := boolVar("n")
	require.NoError(t, p.AddVariable(v, []Value{0, 1, 2, 3}))

	f1 := func(x Value) float64 { return float64(x.(int)) + 1 }
	f2 := func(x Value) float64 { return 0.5 * float64(x.(int)) }
	require.NoError(t, p.AddUnaryFactor(v, f1))
	require.NoError(t, p.AddUnaryFactor(v, f2))

	for _, x := range p.Domain(v) {
		w, ok := p.UnaryWeight(v, x)
		require.True(t, ok)
		assert.InDelta(t, f1(x)*f2(x), w, 1e-12, "value %v", x)
	}
}

func TestUnaryFactorErrors(t *testing.T) {
	p := New()
	v := boolVar("x")
	require.NoError(t, p.AddVariable(v, []Value{true, false}))

	assert.ErrorIs(t, p.AddUnaryFactor(boolVar("missing"), func(Value) float64 { return 1 }), ErrUnknownVariable)
	assert.ErrorIs(t, p.AddUnaryFactor(v, func(Value) float64 { return -1 }), ErrInvalidWeight)
	assert.Nil(t, p.Unary(v), "rejected factor must not be stored")

	// A table that no longer matches the domain can only come from outside
	// interference; the merge still refuses it.
	p.unary[p.index[v]] = []float64{1}
	assert.ErrorIs(t, p.AddUnaryFactor(v, func(Value) float64 { return 1 }), ErrFactorShapeMismatch)
}

func TestBinaryFactorSelfLoop(t *testing.T) {
	p := New()
	v := boolVar("x")
	require.NoError(t, p.AddVariable(v, []Value{true, false}))
	err := p.AddBinaryFactor(v, v, func(a, b Value) float64 { return 1 })
	assert.ErrorIs(t, err, ErrSelfLoopFactor)
	assert.Empty(t, p.Neighbors(v))
}

func TestBinaryFactorTransposeSymmetry(t *testing.T) {
	p := New()
	a, b, c := boolVar("a"), boolVar("b"), boolVar("c")
	require.NoError(t, p.AddVariable(a, []Value{"x", "y"}))
	require.NoError(t, p.AddVariable(b, []Value{1, 2, 3}))
	require.NoError(t, p.AddVariable(c, []Value{true, false}))

	require.NoError(t, p.AddBinaryFactor(a, b, func(x, y Value) float64 {
		if x == "x" {
			return float64(y.(int))
		}
		return 2
	}))
	// Merge in the reverse orientation.
	require.NoError(t, p.AddBinaryFactor(b, a, func(y, x Value) float64 {
		if y == 2 && x == "y" {
			return 0
		}
		return 0.5
	}))
	require.NoError(t, p.AddBinaryFactor(c, b, func(x, y Value) float64 { return Indicator(x == true || y != 1) }))

	pairs := [][2]Var{{a, b}, {b, c}, {a, c}}
	for _, pair := range pairs {
		v1, v2 := pair[0], pair[1]
		for _, x := range p.Domain(v1) {
			for _, y := range p.Domain(v2) {
				w12, ok := p.BinaryWeight(v1, v2, x, y)
				require.True(t, ok)
				w21, ok := p.BinaryWeight(v2, v1, y, x)
				require.True(t, ok)
				assert.Equal(t, w12, w21, "(%s=%v, %s=%v)", v1, x, v2, y)
			}
		}
	}

	w, _ := p.BinaryWeight(a, b, "x", 3)
	assert.InDelta(t, 1.5, w, 1e-12)
	w, _ = p.BinaryWeight(b, a, 2, "y")
	assert.Equal(t, 0.0, w)
	assert.Nil(t, p.Binary(a, c))
}

func TestBinaryFactorShapeMismatch(t *testing.T) {
	p := New()
	a, b := boolVar("a"), boolVar("b")
	require.NoError(t, p.AddVariable(a, []Value{1, 2}))
	require.NoError(t, p.AddVariable(b, []Value{1, 2}))
	require.NoError(t, p.AddBinaryFactor(a, b, func(x, y Value) float64 { return 1 }))

	p.binary[p.index[a]][p.index[b]] = newTable(1, 2)
	err := p.AddBinaryFactor(a, b, func(x, y Value) float64 { return 2 })
	require.True(t, errors.Is(err, ErrFactorShapeMismatch))
	// The reverse table was left untouched.
	assert.Equal(t, 1.0, p.Binary(b, a)[0][0])
}

func TestNeighbors(t *testing.T) {
	p := New()
	vars := []Var{boolVar("a"), boolVar("b"), boolVar("c"), boolVar("d")}
	for _, v := range vars {
		require.NoError(t, p.AddVariable(v, []Value{true, false}))
	}
	one := func(a, b Value) float64 { return 1 }
	require.NoError(t, p.AddBinaryFactor(vars[0], vars[2], one))
	require.NoError(t, p.AddBinaryFactor(vars[1], vars[0], one))
	require.NoError(t, p.AddBinaryFactor(vars[0], vars[2], one))

	assert.Equal(t, []Var{vars[2], vars[1]}, p.Neighbors(vars[0]))
	assert.Equal(t, []Var{vars[0]}, p.Neighbors(vars[1]))
	assert.Empty(t, p.Neighbors(vars[3]))
	assert.Nil(t, p.Neighbors(boolVar("missing")))
}

func TestStats(t *testing.T) {
	p := New()
	a, b := boolVar("a"), boolVar("b")
	require.NoError(t, p.AddVariable(a, []Value{1, 2, 3}))
	require.NoError(t, p.AddVariable(b, []Value{true, false}))
	require.NoError(t, p.AddUnaryFactor(a, func(Value) float64 { return 1 }))
	require.NoError(t, p.AddBinaryFactor(a, b, func(x, y Value) float64 { return 1 }))
	require.NoError(t, p.AddBinaryFactor(b, a, func(x, y Value) float64 { return 1 }))

	assert.Equal(t, Stats{Variables: 2, UnaryFactors: 1, BinaryFactors: 1, TableCells: 9}, p.Stats())
}

func TestVarString(t *testing.T) {
	assert.Equal(t, "recipe:r1/lunch", Var{Kind: "recipe", Name: "r1", Slot: "lunch"}.String())
	assert.Equal(t, "or:lunch#2", Var{Kind: "or", Name: "lunch", Index: 2}.String())
	assert.Equal(t, "sum:total/aggregated", SumVar("total").String())
}

func TestReaderReturnsCopies(t *testing.T) {
	p := New()
	a, b := boolVar("a"), boolVar("b")
	require.NoError(t, p.AddVariable(a, []Value{true, false}))
	require.NoError(t, p.AddVariable(b, []Value{true, false}))
	require.NoError(t, p.AddUnaryFactor(a, func(v Value) float64 { return 2 }))
	require.NoError(t, p.AddBinaryFactor(a, b, func(x, y Value) float64 { return Indicator(x == y) }))

	p.Domain(a)[0] = "changed"
	p.Unary(a)[0] = 0
	p.Binary(a, b)[0][0] = 0
	p.Binary(b, a)[1][1] = 0

	assert.Equal(t, []Value{true, false}, p.Domain(a))
	assert.Equal(t, []float64{2, 2}, p.Unary(a))
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, p.Binary(a, b))
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, p.Binary(b, a))
}

func TestLimitCells(t *testing.T) {
	p := New()
	p.LimitCells(6)
	a, b, c := boolVar("a"), boolVar("b"), Var{Kind: "test", Name: "c"}
	require.NoError(t, p.AddVariable(a, []Value{true, false}))
	require.NoError(t, p.AddVariable(b, []Value{true, false}))
	require.NoError(t, p.AddVariable(c, []Value{1, 2, 3}))

	require.NoError(t, p.AddUnaryFactor(a, func(Value) float64 { return 1 }))
	require.NoError(t, p.AddBinaryFactor(a, b, func(x, y Value) float64 { return 1 }))
	assert.Equal(t, 6, p.Stats().TableCells)

	// Merging into existing tables allocates nothing new.
	require.NoError(t, p.AddUnaryFactor(a, func(Value) float64 { return 2 }))
	require.NoError(t, p.AddBinaryFactor(b, a, func(x, y Value) float64 { return 3 }))

	err := p.AddBinaryFactor(a, c, func(x, y Value) float64 { return 1 })
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, p.Binary(a, c), "rejected factor must not be stored")
	assert.Empty(t, p.Neighbors(c))
	err = p.AddUnaryFactor(c, func(Value) float64 { return 1 })
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, p.Unary(c))
	assert.Equal(t, 6, p.Stats().TableCells)

	p.LimitCells(0)
	require.NoError(t, p.AddBinaryFactor(a, c, func(x, y Value) float64 { return 1 }))
	assert.Equal(t, 12, p.Stats().TableCells)
}
