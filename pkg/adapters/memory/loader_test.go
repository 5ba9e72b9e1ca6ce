package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	contract "github.com/aretw0/weft/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLoader_Contract(t *testing.T) {
	data := map[string]string{
		"deploy": "stateDiagram-v2\nstate A\n[*] --> A\n",
		"review": "stateDiagram-v2\nstate B\n[*] --> B\n",
	}

	expected := make(map[domain.WorkflowName]string)
	for k, v := range data {
		expected[domain.WorkflowName(k)] = v
	}

	contract.WorkflowLoaderContractTest(t, memory.NewLoader(data), expected)
}

func TestInMemoryLoader_FromDefinitions(t *testing.T) {
	def := &domain.WorkflowDefinition{
		Name:         "tiny",
		InitialState: "Start",
		States: []domain.State{
			{ID: "Start", Kind: domain.StateStart},
			{ID: "End", Kind: domain.StateEnd},
		},
		Transitions: []domain.Transition{{From: "Start", To: "End", Condition: domain.Always()}},
	}
	loader, err := memory.NewFromDefinitions(def)
	require.NoError(t, err)

	src, err := loader.Source(context.Background(), "tiny")
	require.NoError(t, err)
	assert.Contains(t, string(src.Source), "[*] --> Start")

	_, err = memory.NewFromDefinitions(&domain.WorkflowDefinition{})
	assert.Error(t, err)
}

func TestInMemoryLoader_WatchPut(t *testing.T) {
	loader := memory.NewLoader(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := loader.Watch(ctx)
	require.NoError(t, err)

	loader.Put(domain.WorkflowSource{Name: "fresh", Source: []byte("stateDiagram-v2")})

	select {
	case name := <-events:
		assert.Equal(t, "fresh", name)
	case <-time.After(time.Second):
		t.Fatal("no watch event")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-events
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestPrompts(t *testing.T) {
	lib := memory.NewPrompts(domain.Prompt{Name: "greet", Body: "Hello {{.name}}"})

	p, err := lib.Prompt(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{.name}}", p.Body)

	_, err = lib.Prompt(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPromptNotFound)
}
