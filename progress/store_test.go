package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_ContentFlags(t *testing.T) {
	s := NewStore()

	assert.False(t, s.IsContentCompleted("c1"))

	s.SetContentCompleted("c1", "ch1", "course1", true)
	assert.True(t, s.IsContentCompleted("c1"))
	assert.False(t, s.IsContentCompleted("c2"))

	s.SetContentCompleted("c1", "ch1", "course1", false)
	assert.False(t, s.IsContentCompleted("c1"))
}

func TestStore_ChapterAggregate(t *testing.T) {
	s := NewStore()

	assert.False(t, s.IsChapterCompleted("ch1"))
	assert.Equal(t, 0.0, s.ChapterPercentage("ch1"))

	s.SetChapterCompleted("ch1", "course1", false, 50)
	assert.False(t, s.IsChapterCompleted("ch1"))
	assert.Equal(t, 50.0, s.ChapterPercentage("ch1"))

	s.SetChapterCompleted("ch1", "course1", true, 100)
	assert.True(t, s.IsChapterCompleted("ch1"))
	assert.Equal(t, 100.0, s.ChapterPercentage("ch1"))
}

func TestStore_VideoPositions(t *testing.T) {
	s := NewStore()

	assert.Equal(t, 0.0, s.GetVideoPosition("c1"))

	s.SetVideoPosition("c1", 42.5)
	assert.Equal(t, 42.5, s.GetVideoPosition("c1"))
}

func TestStore_SavingFlag(t *testing.T) {
	s := NewStore()

	assert.False(t, s.IsSaving("c1"))
	s.SetSavingProgress("c1", true)
	assert.True(t, s.IsSaving("c1"))
	s.SetSavingProgress("c1", false)
	assert.False(t, s.IsSaving("c1"))
}

func TestStore_CompletedContents(t *testing.T) {
	s := NewStore()

	s.SetContentCompleted("c1", "ch1", "course1", true)
	s.SetContentCompleted("c2", "ch1", "course1", true)
	s.SetContentCompleted("c3", "ch2", "course1", true)

	got := s.CompletedContents("ch1")
	assert.ElementsMatch(t, []string{"c1", "c2"}, got)
	assert.ElementsMatch(t, []string{"c3"}, s.CompletedContents("ch2"))
	assert.Empty(t, s.CompletedContents("ch3"))
}

func TestStore_CompletionFlags(t *testing.T) {
	s := NewStore()

	s.SetContentCompleted("c1", "ch1", "course1", true)

	flags := s.CompletionFlags([]string{"c1", "c2"})
	assert.True(t, flags["c1"])
	assert.False(t, flags["c2"])
	assert.Len(t, flags, 2)
}
