package engine

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steps(defs ...[]string) []*Step {
	out := make([]*Step, 0, len(defs))
	for _, d := range defs {
		out = append(out, &Step{Name: d[0], DependsOn: d[1:]})
	}
	return out
}

func TestBuildDAG_NoDependencies(t *testing.T) {
	dag, err := BuildDAG(steps([]string{"a"}, []string{"b"}, []string{"c"}))
	require.NoError(t, err)

	// Declaration order is kept when nothing constrains it.
	assert.Equal(t, []string{"a", "b", "c"}, dag.CreationOrder())
	assert.Equal(t, []string{"c", "b", "a"}, dag.DestructionOrder())
}

func TestBuildDAG_ExplicitDependsOn(t *testing.T) {
	dag, err := BuildDAG(steps(
		[]string{"a", "b"},
		[]string{"b"},
		[]string{"c", "a"},
	))
	require.NoError(t, err)

	order := dag.CreationOrder()
	require.Len(t, order, 3)

	// b must come before a, a must come before c
	posB := slices.Index(order, "b")
	posA := slices.Index(order, "a")
	posC := slices.Index(order, "c")

	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuildDAG_StableTieBreak(t *testing.T) {
	dag, err := BuildDAG(steps(
		[]string{"root"},
		[]string{"x", "root"},
		[]string{"y", "root"},
		[]string{"x2", "x"},
		[]string{"z", "root"},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "x", "y", "x2", "z"}, dag.CreationOrder())
}

func TestBuildDAG_DuplicateEdges(t *testing.T) {
	dag, err := BuildDAG(steps([]string{"a"}, []string{"b", "a", "a"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, dag.Dependencies("b"))
	assert.Equal(t, []string{"a", "b"}, dag.CreationOrder())
}

func TestBuildDAG_Errors(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*Step
		wantErr string
	}{
		{"cycle", steps([]string{"a", "b"}, []string{"b", "a"}), "cycle"},
		{"self cycle", steps([]string{"a", "a"}), "cycle"},
		{"unknown dependency", steps([]string{"a", "nope"}), `unknown step "nope"`},
		{"duplicate", steps([]string{"a"}, []string{"a"}), `duplicate step "a"`},
		{"unnamed", []*Step{{}}, "no name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildDAG(tt.steps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildDAG_Lookup(t *testing.T) {
	dag, err := BuildDAG(steps([]string{"a"}, []string{"b", "a"}))
	require.NoError(t, err)

	require.NotNil(t, dag.Step("b"))
	assert.Equal(t, "b", dag.Step("b").Name)
	assert.Nil(t, dag.Step("missing"))
	assert.Nil(t, dag.Dependencies("missing"))
}
