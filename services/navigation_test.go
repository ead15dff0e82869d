package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitschool/orbit_api/model"
)

func navFixture() ([]model.Chapter, map[string][]model.ContentItem) {
	chapters := []model.Chapter{
		{ID: "ch1"},
		{ID: "ch2"},
		{ID: "ch3"},
	}
	contents := map[string][]model.ContentItem{
		"ch1": {{ID: "a"}, {ID: "b"}},
		"ch2": {},
		"ch3": {{ID: "c"}},
	}
	return chapters, contents
}

func TestNextTarget_WithinChapter(t *testing.T) {
	chapters, contents := navFixture()

	next := NextTarget(chapters, contents, "ch1", "a")
	require.NotNil(t, next)
	assert.Equal(t, "ch1", next.ChapterID)
	assert.Equal(t, "b", next.ContentID)
}

func TestNextTarget_CrossesChapterSkippingEmpty(t *testing.T) {
	chapters, contents := navFixture()

	// ch2 has no contents, so the next item after ch1's last is ch3's first.
	next := NextTarget(chapters, contents, "ch1", "b")
	require.NotNil(t, next)
	assert.Equal(t, "ch3", next.ChapterID)
	assert.Equal(t, "c", next.ContentID)
}

func TestNextTarget_EndOfCourse(t *testing.T) {
	chapters, contents := navFixture()

	assert.Nil(t, NextTarget(chapters, contents, "ch3", "c"))
}

func TestNextTarget_UnknownChapter(t *testing.T) {
	chapters, contents := navFixture()

	assert.Nil(t, NextTarget(chapters, contents, "missing", "a"))
}

func TestNextTarget_UnknownContentFallsToNextChapter(t *testing.T) {
	chapters, contents := navFixture()

	// An unknown content id cannot anchor within-chapter movement; the
	// target is the first item of the next non-empty chapter.
	next := NextTarget(chapters, contents, "ch1", "missing")
	require.NotNil(t, next)
	assert.Equal(t, "ch3", next.ChapterID)
}

func TestPreviousTarget_WithinChapter(t *testing.T) {
	_, contents := navFixture()

	prev := PreviousTarget(contents, "ch1", "b")
	require.NotNil(t, prev)
	assert.Equal(t, "ch1", prev.ChapterID)
	assert.Equal(t, "a", prev.ContentID)
}

func TestPreviousTarget_FirstItemHasNoPrevious(t *testing.T) {
	_, contents := navFixture()

	// Backward navigation never crosses a chapter boundary.
	assert.Nil(t, PreviousTarget(contents, "ch3", "c"))
	assert.Nil(t, PreviousTarget(contents, "ch1", "a"))
}
