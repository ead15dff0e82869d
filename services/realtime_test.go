package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCourseChannel(t *testing.T) {
	assert.Equal(t, "course_changes:abc", CourseChannel("abc"))
}

func TestInvalidationKeys_EmptyCourseID(t *testing.T) {
	keys, prefixes := InvalidationKeys(ChangeEvent{Table: "chapters"})
	assert.Nil(t, keys)
	assert.Nil(t, prefixes)
}

func TestInvalidationKeys_CourseOnly(t *testing.T) {
	keys, prefixes := InvalidationKeys(ChangeEvent{Table: "courses", CourseID: "c1"})

	assert.ElementsMatch(t, []string{"course:c1", "course:c1:chapters"}, keys)
	assert.Equal(t, []string{"courses:"}, prefixes)
}

func TestInvalidationKeys_WithChapter(t *testing.T) {
	keys, prefixes := InvalidationKeys(ChangeEvent{
		Table:     "chapter_contents",
		CourseID:  "c1",
		ChapterID: "ch1",
	})

	assert.ElementsMatch(t, []string{"course:c1", "course:c1:chapters", "chapter:ch1"}, keys)
	assert.Equal(t, []string{"courses:"}, prefixes)
}
