package services

import (
	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/model"
)

// NextTarget resolves the forward navigation target from the current
// position: the next content item in the current chapter, or the first
// item of the next chapter by order. Forward movement never depends on
// completion or unlock state. Returns nil at the end of the course.
func NextTarget(chapters []model.Chapter, contents map[string][]model.ContentItem, chapterID, contentID string) *dto.NavigationTarget {
	chapterIdx := indexOfChapter(chapters, chapterID)
	if chapterIdx < 0 {
		return nil
	}

	items := contents[chapterID]
	contentIdx := indexOfContent(items, contentID)
	if contentIdx >= 0 && contentIdx+1 < len(items) {
		return &dto.NavigationTarget{
			ChapterID: chapterID,
			ContentID: items[contentIdx+1].ID,
		}
	}

	// Exhausted the current chapter: first non-empty following chapter.
	for i := chapterIdx + 1; i < len(chapters); i++ {
		next := contents[chapters[i].ID]
		if len(next) > 0 {
			return &dto.NavigationTarget{
				ChapterID: chapters[i].ID,
				ContentID: next[0].ID,
			}
		}
	}

	return nil
}

// PreviousTarget resolves backward navigation within the current chapter
// only; crossing a chapter boundary backwards goes through the sidebar.
func PreviousTarget(contents map[string][]model.ContentItem, chapterID, contentID string) *dto.NavigationTarget {
	items := contents[chapterID]
	contentIdx := indexOfContent(items, contentID)
	if contentIdx <= 0 {
		return nil
	}
	return &dto.NavigationTarget{
		ChapterID: chapterID,
		ContentID: items[contentIdx-1].ID,
	}
}

func indexOfChapter(chapters []model.Chapter, chapterID string) int {
	for i, c := range chapters {
		if c.ID == chapterID {
			return i
		}
	}
	return -1
}

func indexOfContent(contents []model.ContentItem, contentID string) int {
	for i, c := range contents {
		if c.ID == contentID {
			return i
		}
	}
	return -1
}
