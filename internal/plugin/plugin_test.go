package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	exec := NewBashExecutor()
	r.Register("bash", exec)

	got, ok := r.Lookup("bash")
	require.True(t, ok)
	require.Same(t, Executor(exec), got)

	_, ok = r.Lookup("spark")
	require.False(t, ok)
}

func TestBashExecutorRunsCommand(t *testing.T) {
	e := NewBashExecutor()
	err := e.Execute(context.Background(), Job{
		App: "a", JobID: "j1",
		Payload: map[string]any{"command": "exit 0"},
	})
	require.NoError(t, err)
}

func TestBashExecutorSurfacesFailure(t *testing.T) {
	e := NewBashExecutor()
	err := e.Execute(context.Background(), Job{
		App: "a", JobID: "j1",
		Payload: map[string]any{"command": "exit 1"},
	})
	require.Error(t, err)
}

func TestBashExecutorRequiresCommand(t *testing.T) {
	e := NewBashExecutor()
	err := e.Execute(context.Background(), Job{App: "a", JobID: "j1"})
	require.Error(t, err)
}

func TestShellOutExecutorRequiresInterpreter(t *testing.T) {
	e := &ShellOutExecutor{}
	err := e.Execute(context.Background(), Job{App: "a", JobID: "j1"})
	require.Error(t, err)
}
