package solver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Larder/internal/csp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func v(name string) csp.Var { return csp.Var{Kind: "test", Name: name} }

func notBoth(a, b csp.Value) float64 { return csp.Indicator(!(a == true && b == true)) }

func bools() []csp.Value { return []csp.Value{true, false} }

func TestSolveBestPicksHeaviest(t *testing.T) {
	p := csp.New()
	require.NoError(t, p.AddVariable(v("a"), bools()))
	require.NoError(t, p.AddVariable(v("b"), bools()))
	require.NoError(t, p.AddUnaryFactor(v("a"), func(x csp.Value) float64 {
		if x == true {
			return 2
		}
		return 1
	}))
	require.NoError(t, p.AddUnaryFactor(v("b"), func(x csp.Value) float64 {
		if x == true {
			return 3
		}
		return 1
	}))
	require.NoError(t, p.AddBinaryFactor(v("a"), v("b"), notBoth))

	res, err := New(discardLogger()).Solve(context.Background(), p, Options{Mode: ModeBest})
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Equal(t, 3.0, res.Weight)
	assert.Equal(t, false, res.Assignment[v("a")])
	assert.Equal(t, true, res.Assignment[v("b")])
	assert.Equal(t, 3, res.Solutions)
}

func TestSolveFirstStopsEarly(t *testing.T) {
	p := csp.New()
	for i := 0; i < 4; i++ {
		require.NoError(t, p.AddVariable(v(fmt.Sprint(i)), bools()))
	}

	res, err := New(discardLogger()).Solve(context.Background(), p, Options{Mode: ModeFirst})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Solutions)
	assert.Equal(t, 4, res.Nodes)
	assert.False(t, res.Exhausted)
	assert.Len(t, res.Assignment, 4)
}

func TestSolveNoSolution(t *testing.T) {
	p := csp.New()
	require.NoError(t, p.AddVariable(v("a"), bools()))
	require.NoError(t, p.AddVariable(v("b"), bools()))
	require.NoError(t, p.AddUnaryFactor(v("a"), func(x csp.Value) float64 { return csp.Indicator(x == true) }))
	require.NoError(t, p.AddUnaryFactor(v("b"), func(x csp.Value) float64 { return csp.Indicator(x == true) }))
	require.NoError(t, p.AddBinaryFactor(v("a"), v("b"), notBoth))

	res, err := New(discardLogger()).Solve(context.Background(), p, Options{})
	assert.ErrorIs(t, err, ErrNoSolution)
	require.NotNil(t, res)
	assert.True(t, res.Exhausted)
	assert.Nil(t, res.Assignment)
}

func TestSolveEmptyProblem(t *testing.T) {
	res, err := New(discardLogger()).Solve(context.Background(), csp.New(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Weight)
	assert.Empty(t, res.Assignment)
	assert.Equal(t, 0, res.Nodes)
}

func TestSolvePinned(t *testing.T) {
	p := csp.New()
	require.NoError(t, p.AddVariable(v("a"), bools()))
	require.NoError(t, p.AddVariable(v("b"), bools()))
	require.NoError(t, p.AddUnaryFactor(v("a"), func(x csp.Value) float64 {
		if x == true {
			return 5
		}
		return 1
	}))
	require.NoError(t, p.AddBinaryFactor(v("a"), v("b"), notBoth))

	s := New(discardLogger())

	res, err := s.Solve(context.Background(), p, Options{Pinned: map[csp.Var]csp.Value{v("b"): true}})
	require.NoError(t, err)
	assert.Equal(t, false, res.Assignment[v("a")])
	assert.Equal(t, true, res.Assignment[v("b")])
	assert.Equal(t, 1.0, res.Weight)

	_, err = s.Solve(context.Background(), p, Options{Pinned: map[csp.Var]csp.Value{v("a"): true, v("b"): true}})
	assert.ErrorIs(t, err, ErrNoSolution)

	_, err = s.Solve(context.Background(), p, Options{Pinned: map[csp.Var]csp.Value{v("a"): 7}})
	assert.ErrorIs(t, err, ErrInvalidPin)

	_, err = s.Solve(context.Background(), p, Options{Pinned: map[csp.Var]csp.Value{v("zzz"): true}})
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestSolveMaxNodes(t *testing.T) {
	p := csp.New()
	for i := 0; i < 6; i++ {
		require.NoError(t, p.AddVariable(v(fmt.Sprint(i)), bools()))
	}

	res, err := New(discardLogger()).Solve(context.Background(), p, Options{MaxNodes: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Nodes)
	assert.False(t, res.Exhausted)
	assert.Positive(t, res.Solutions)
}

func TestSolveCancelledKeepsBestSoFar(t *testing.T) {
	p := csp.New()
	for i := 0; i < 11; i++ {
		require.NoError(t, p.AddVariable(v(fmt.Sprint(i)), bools()))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(discardLogger()).Solve(ctx, p, Options{})
	require.NoError(t, err)
	assert.False(t, res.Exhausted)
	assert.Equal(t, ctxCheckEvery, res.Nodes)
	assert.Len(t, res.Assignment, 11)
}

func TestSolveCancelledBeforeAnySolution(t *testing.T) {
	// x and y can never agree, but the conflict only shows once x is set,
	// after every free variable.
	p := csp.New()
	for i := 0; i < 11; i++ {
		require.NoError(t, p.AddVariable(v(fmt.Sprint(i)), bools()))
	}
	require.NoError(t, p.AddVariable(v("x"), bools()))
	require.NoError(t, p.AddVariable(v("y"), bools()))
	require.NoError(t, p.AddBinaryFactor(v("x"), v("y"), func(a, b csp.Value) float64 { return csp.Indicator(a == b) }))
	require.NoError(t, p.AddBinaryFactor(v("x"), v("y"), func(a, b csp.Value) float64 { return csp.Indicator(a != b) }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(discardLogger()).Solve(ctx, p, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolveSumGadget(t *testing.T) {
	p := csp.New()
	vars := []csp.Var{v("x"), v("y"), v("z")}
	require.NoError(t, p.AddVariable(vars[0], []csp.Value{0, 2}))
	require.NoError(t, p.AddVariable(vars[1], []csp.Value{0, 3}))
	require.NoError(t, p.AddVariable(vars[2], []csp.Value{1, 4}))
	res, err := csp.CompileSum(p, "s", vars, 9)
	require.NoError(t, err)
	require.NoError(t, p.AddUnaryFactor(res, func(x csp.Value) float64 { return csp.Indicator(x == 7) }))

	out, err := New(discardLogger()).Solve(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Solutions)
	assert.Equal(t, 0, out.Assignment[vars[0]])
	assert.Equal(t, 3, out.Assignment[vars[1]])
	assert.Equal(t, 4, out.Assignment[vars[2]])
	assert.Equal(t, 7, out.Assignment[res])
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeBest, false},
		{"best", ModeBest, false},
		{"first", ModeFirst, false},
		{"fastest", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Mode {
	t.Helper()
	m, err := ParseMode(s)
	require.NoError(t, err)
	return m
}
