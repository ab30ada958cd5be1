package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isabella232/stolos/internal/taskconfig"
)

func TestEvaluateNoValidIfOrPasses(t *testing.T) {
	r := NewRegistry()
	desc := &taskconfig.Descriptor{App: "a"}
	ok, err := r.Evaluate(desc, "j1", nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateFieldMatch(t *testing.T) {
	r := NewRegistry()
	desc := &taskconfig.Descriptor{
		App:       "a",
		ValidIfOr: &taskconfig.ValidIfOr{Fields: map[string][]string{"type": {"profile"}}},
	}

	ok, err := r.Evaluate(desc, "j1", map[string]string{"type": "profile"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Evaluate(desc, "j1", map[string]string{"type": "content"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateFieldAbsentIsUnconstrained(t *testing.T) {
	r := NewRegistry()
	desc := &taskconfig.Descriptor{
		App:       "a",
		ValidIfOr: &taskconfig.ValidIfOr{Fields: map[string][]string{"type": {"profile"}}},
	}
	ok, err := r.Evaluate(desc, "j1", map[string]string{"other": "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateFuncPredicate(t *testing.T) {
	r := NewRegistry()
	r.Register("always_false", func(app, jobID string, fields map[string]string) bool {
		return false
	})
	desc := &taskconfig.Descriptor{
		App:       "a",
		ValidIfOr: &taskconfig.ValidIfOr{Func: "always_false"},
	}
	ok, err := r.Evaluate(desc, "j1", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateUnregisteredFuncIsDAGMisconfigured(t *testing.T) {
	r := NewRegistry()
	desc := &taskconfig.Descriptor{
		App:       "a",
		ValidIfOr: &taskconfig.ValidIfOr{Func: "missing"},
	}
	_, err := r.Evaluate(desc, "j1", nil)
	require.Error(t, err)
}
