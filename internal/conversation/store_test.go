package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndHistory(t *testing.T) {
	store := NewStore()

	store.Append("s1",
		Turn{Role: RoleHuman, Text: "What is the glucose level?"},
		Turn{Role: RoleAssistant, Text: "Elevated, per case.pdf p.1."},
	)

	history := store.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, RoleHuman, history[0].Role)
	assert.Equal(t, RoleAssistant, history[1].Role)
}

func TestStore_HistoryIsCopy(t *testing.T) {
	store := NewStore()
	store.Append("s1", Turn{Role: RoleHuman, Text: "original"})

	history := store.History("s1")
	history[0].Text = "mutated"

	assert.Equal(t, "original", store.History("s1")[0].Text)
}

func TestStore_UnknownSession(t *testing.T) {
	store := NewStore()
	assert.Empty(t, store.History("never-seen"))
}

func TestStore_EnsureSession(t *testing.T) {
	store := NewStore()

	assert.Equal(t, "given", store.EnsureSession("given"))

	minted := store.EnsureSession("")
	assert.NotEmpty(t, minted)
	assert.NotEqual(t, minted, store.EnsureSession(" "))
}

func TestStore_Reset(t *testing.T) {
	store := NewStore()
	store.Append("s1", Turn{Role: RoleHuman, Text: "hi"})
	store.Append("s2", Turn{Role: RoleHuman, Text: "hi"})

	store.Reset("s1")
	assert.Empty(t, store.History("s1"))
	assert.Len(t, store.History("s2"), 1)

	store.ResetAll()
	assert.Equal(t, 0, store.Len())
}

func TestStore_ConcurrentSessionsIndependent(t *testing.T) {
	store := NewStore()

	const perSession = 50
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < perSession; j++ {
				store.Append(id,
					Turn{Role: RoleHuman, Text: fmt.Sprintf("q%d", j)},
					Turn{Role: RoleAssistant, Text: fmt.Sprintf("a%d", j)},
				)
			}
		}(fmt.Sprintf("session-%d", i))
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		history := store.History(fmt.Sprintf("session-%d", i))
		require.Len(t, history, 2*perSession)
		// Pairs stay adjacent and ordered because each exchange is one
		// Append call serialized per session.
		for j := 0; j < perSession; j++ {
			assert.Equal(t, fmt.Sprintf("q%d", j), history[2*j].Text)
			assert.Equal(t, fmt.Sprintf("a%d", j), history[2*j+1].Text)
		}
	}
}
