package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileChapter_EmptyChapter(t *testing.T) {
	res := ReconcileChapter(nil, nil, nil)

	assert.Empty(t, res.Merged)
	assert.Empty(t, res.Divergences)
	assert.False(t, res.ChapterComplete)
	assert.Equal(t, 0.0, res.Percentage)
}

func TestReconcileChapter_AgreementProducesNoDivergence(t *testing.T) {
	ids := []string{"a", "b"}
	local := map[string]bool{"a": true}
	remote := map[string]bool{"a": true}

	res := ReconcileChapter(ids, local, remote)

	assert.Empty(t, res.Divergences)
	assert.True(t, res.Merged["a"])
	assert.False(t, res.Merged["b"])
	assert.False(t, res.ChapterComplete)
	assert.Equal(t, 50.0, res.Percentage)
}

func TestReconcileChapter_ServerAhead(t *testing.T) {
	ids := []string{"a"}
	remote := map[string]bool{"a": true}

	res := ReconcileChapter(ids, nil, remote)

	require.Len(t, res.Divergences, 1)
	assert.Equal(t, "a", res.Divergences[0].ContentID)
	assert.Equal(t, ServerAhead, res.Divergences[0].Direction)
	assert.True(t, res.Merged["a"])
}

func TestReconcileChapter_LocalAheadNeverRollsBack(t *testing.T) {
	ids := []string{"a"}
	local := map[string]bool{"a": true}
	remote := map[string]bool{"a": false}

	res := ReconcileChapter(ids, local, remote)

	require.Len(t, res.Divergences, 1)
	assert.Equal(t, LocalAhead, res.Divergences[0].Direction)
	// The optimistic completion survives the merge.
	assert.True(t, res.Merged["a"])
	assert.True(t, res.ChapterComplete)
}

func TestReconcileChapter_MixedDirections(t *testing.T) {
	ids := []string{"a", "b", "c"}
	local := map[string]bool{"a": true}
	remote := map[string]bool{"b": true}

	res := ReconcileChapter(ids, local, remote)

	require.Len(t, res.Divergences, 2)
	dirs := map[string]Direction{}
	for _, d := range res.Divergences {
		dirs[d.ContentID] = d.Direction
	}
	assert.Equal(t, LocalAhead, dirs["a"])
	assert.Equal(t, ServerAhead, dirs["b"])

	assert.False(t, res.ChapterComplete)
	assert.InDelta(t, 66.67, res.Percentage, 0.01)
}

func TestReconcileChapter_CompleteWithOptimisticFlags(t *testing.T) {
	ids := []string{"a", "b"}
	local := map[string]bool{"b": true}
	remote := map[string]bool{"a": true}

	res := ReconcileChapter(ids, local, remote)

	assert.True(t, res.ChapterComplete)
	assert.Equal(t, 100.0, res.Percentage)
}

func TestResultApply_SyncsServerAheadIntoStore(t *testing.T) {
	store := NewStore()

	res := ReconcileChapter([]string{"a", "b"}, map[string]bool{"b": true}, map[string]bool{"a": true})
	res.Apply(store, "ch1", "course1")

	// Server-ahead item is synced up.
	assert.True(t, store.IsContentCompleted("a"))
	// Chapter aggregate reflects the merge.
	assert.True(t, store.IsChapterCompleted("ch1"))
	assert.Equal(t, 100.0, store.ChapterPercentage("ch1"))
}

func TestResultApply_DoesNotWriteLocalAhead(t *testing.T) {
	store := NewStore()
	store.SetContentCompleted("a", "ch1", "course1", true)

	res := ReconcileChapter([]string{"a", "b"}, map[string]bool{"a": true}, nil)
	res.Apply(store, "ch1", "course1")

	// The local flag is untouched; persisting it is the caller's job.
	assert.True(t, store.IsContentCompleted("a"))
	assert.False(t, store.IsChapterCompleted("ch1"))
	assert.Equal(t, 50.0, store.ChapterPercentage("ch1"))
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "server_ahead", ServerAhead.String())
	assert.Equal(t, "local_ahead", LocalAhead.String())
}
