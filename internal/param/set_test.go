package param

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleSet(t *testing.T) *Set {
	t.Helper()
	s, err := NewSet(
		New("x", 5.0, "a.u."),
		New("y", []float64{4.5, 3.4, 3, 5}, "a.u."),
		New("z", 1.0, ""),
		New("w", []float64{1, 2, 3, 4}, "a.u."),
	)
	require.NoError(t, err)
	return s
}

func TestNew_DefaultIteratedRule(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		value    any
		opts     []Option
		iterated bool
	}{
		{name: "scalar", value: 3.0, iterated: false},
		{name: "slice", value: []float64{1, 2}, iterated: true},
		{name: "array", value: [2]int{1, 2}, iterated: true},
		{name: "string", value: "abc", iterated: false},
		{name: "slice forced scalar", value: []float64{1, 2}, opts: []Option{Iterated(false)}, iterated: false},
		{name: "nil", value: nil, iterated: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := New("p", tc.value, "", tc.opts...)
			assert.Equal(t, tc.iterated, p.IsIterated())
			assert.Equal(t, DefaultUnits, p.Units())
		})
	}
}

func TestNewSet_DuplicateName(t *testing.T) {
	t.Parallel()

	_, err := NewSet(New("a", 1, ""), New("a", 2, ""))
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestNewSet_IteratedScalarRejected(t *testing.T) {
	t.Parallel()

	_, err := NewSet(New("a", 1.0, "", Iterated(true)))
	require.ErrorIs(t, err, ErrNotSequence)
}

func TestSet_Partition(t *testing.T) {
	t.Parallel()
	s := exampleSet(t)

	assert.Equal(t, []string{"y", "w"}, s.Iterables().Names())
	assert.Equal(t, []string{"x", "z"}, s.Constants().Names())
	assert.Equal(t, s.Len(), s.Iterables().Len()+s.Constants().Len())
	assert.Equal(t, 16, s.TotalIterations())
}

func TestSet_TotalIterationsWithoutIterables(t *testing.T) {
	t.Parallel()

	s := MustSet(New("a", 1, ""), New("b", 2, ""))
	assert.Equal(t, 1, s.TotalIterations())
	assert.Empty(t, s.StepDescriptors())
}

func TestSet_SetValueNotFound(t *testing.T) {
	t.Parallel()
	s := exampleSet(t)

	err := s.SetValue("missing", 1.0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Lookup("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSet_SetValueRecomputesIterated(t *testing.T) {
	t.Parallel()
	s := exampleSet(t)

	require.NoError(t, s.SetValue("y", 3.4))
	p, ok := s.Get("y")
	require.True(t, ok)
	assert.False(t, p.IsIterated())
	assert.Equal(t, "a.u.", p.Units())

	require.NoError(t, s.SetValue("x", []float64{1, 2}))
	p, _ = s.Get("x")
	assert.True(t, p.IsIterated())

	require.NoError(t, s.SetValue("x", []float64{1, 2}, Iterated(false)))
	p, _ = s.Get("x")
	assert.False(t, p.IsIterated())
}

func TestSet_SetValueAt(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		index    int
		value    any
		opts     []Option
		want     string
		iterated bool
		wantErr  error
	}{
		{name: "first", index: 0, value: 7.0, want: "x", iterated: false},
		{name: "last becomes scalar", index: 3, value: 2.0, want: "w", iterated: false},
		{name: "scalar becomes iterated", index: 2, value: []float64{1, 2}, want: "z", iterated: true},
		{name: "iterated override", index: 1, value: []float64{1, 2}, opts: []Option{Iterated(false)}, want: "y", iterated: false},
		{name: "negative", index: -1, value: 1.0, wantErr: ErrNotFound},
		{name: "equal to len", index: 4, value: 1.0, wantErr: ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := exampleSet(t)
			err := s.SetValueAt(tc.index, tc.value, tc.opts...)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, exampleSet(t).Values(), s.Values())
				return
			}
			require.NoError(t, err)

			p, ok := s.Get(tc.want)
			require.True(t, ok)
			assert.Equal(t, tc.value, p.Value())
			assert.Equal(t, tc.iterated, p.IsIterated())
			assert.Equal(t, tc.want, s.Names()[tc.index])
		})
	}
}

func TestSet_WithLeavesReceiverUntouched(t *testing.T) {
	t.Parallel()
	s := exampleSet(t)

	derived, err := s.With("w", 2.0)
	require.NoError(t, err)

	orig, _ := s.Get("w")
	assert.True(t, orig.IsIterated())
	assert.Equal(t, []float64{1, 2, 3, 4}, orig.Value())

	got, err := derived.Float64("w")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestSet_CloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	vals := []float64{1, 2, 3}
	s := MustSet(New("v", vals, ""))
	vals[0] = 100

	c := s.Clone()
	p, _ := s.Get("v")
	assert.Equal(t, []float64{1, 2, 3}, p.Value())

	elems := p.Value().([]float64)
	elems[1] = 200
	q, _ := c.Get("v")
	assert.Equal(t, []float64{1, 2, 3}, q.Value())
}

func TestStepDescriptors_ReversesDeclarationOrder(t *testing.T) {
	t.Parallel()
	s := exampleSet(t)

	steps := s.StepDescriptors()
	require.Len(t, steps, 2)
	assert.Equal(t, "w", steps[0].Name)
	assert.Equal(t, "y", steps[1].Name)
	assert.Equal(t, []any{4.5, 3.4, 3.0, 5.0}, steps[1].Values)

	declared := s.DeclaredSteps()
	assert.Equal(t, "y", declared[0].Name)
	if diff := cmp.Diff(declared, ToOuterConventionStepList(steps)); diff != "" {
		t.Errorf("reversal is not an involution (-want +got):\n%s", diff)
	}
}

func TestFieldDescriptors(t *testing.T) {
	t.Parallel()

	res := MustSet(New("product", 2.0, ""), New("vector", []float64{1, 2}, "V"))
	want := []FieldDescriptor{
		{Name: "product", Units: DefaultUnits, Vector: false},
		{Name: "vector", Units: "V", Vector: true},
	}
	if diff := cmp.Diff(want, res.FieldDescriptors()); diff != "" {
		t.Errorf("FieldDescriptors mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataSummary(t *testing.T) {
	t.Parallel()
	s := exampleSet(t)

	first := s.MetadataSummary()
	assert.Equal(t, first, s.MetadataSummary())

	lines := strings.Split(strings.TrimSpace(first), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"name", "value", "units"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"x", "5", "a.u."}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"y", "iterated", "a.u."}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"z", "1", "n.u."}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"w", "iterated", "a.u."}, strings.Fields(lines[4]))
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.1", FormatValue(0.1))
	assert.Equal(t, "[1 2.5]", FormatValue([]float64{1, 2.5}))
	assert.Equal(t, "abc", FormatValue("abc"))
	assert.Equal(t, "<nil>", FormatValue(nil))
}
