// Package progress holds the optimistic completion state for a learner
// session and the reconciliation logic that keeps it aligned with the
// rows persisted in Postgres. The store is plain in-memory state passed
// explicitly to whoever needs it; it is never authoritative.
package progress

import (
	"sync"
	"time"
)

type contentEntry struct {
	ChapterID string
	CourseID  string
	Completed bool
	UpdatedAt time.Time
}

type chapterEntry struct {
	CourseID   string
	Completed  bool
	Percentage float64
}

// Store is the session-scoped optimistic mirror of content and chapter
// completion. Reads and writes are synchronous and never fail; callers
// are responsible for persisting anything they write here.
type Store struct {
	mu        sync.RWMutex
	contents  map[string]contentEntry
	chapters  map[string]chapterEntry
	saving    map[string]bool
	positions map[string]float64
}

func NewStore() *Store {
	return &Store{
		contents:  make(map[string]contentEntry),
		chapters:  make(map[string]chapterEntry),
		saving:    make(map[string]bool),
		positions: make(map[string]float64),
	}
}

func (s *Store) IsContentCompleted(contentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contents[contentID].Completed
}

func (s *Store) SetContentCompleted(contentID, chapterID, courseID string, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[contentID] = contentEntry{
		ChapterID: chapterID,
		CourseID:  courseID,
		Completed: completed,
		UpdatedAt: time.Now(),
	}
}

func (s *Store) IsChapterCompleted(chapterID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chapters[chapterID].Completed
}

func (s *Store) ChapterPercentage(chapterID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chapters[chapterID].Percentage
}

func (s *Store) SetChapterCompleted(chapterID, courseID string, completed bool, percentage float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[chapterID] = chapterEntry{
		CourseID:   courseID,
		Completed:  completed,
		Percentage: percentage,
	}
}

func (s *Store) GetVideoPosition(contentID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[contentID]
}

func (s *Store) SetVideoPosition(contentID string, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[contentID] = seconds
}

func (s *Store) IsSaving(contentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saving[contentID]
}

func (s *Store) SetSavingProgress(contentID string, saving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if saving {
		s.saving[contentID] = true
	} else {
		delete(s.saving, contentID)
	}
}

// CompletedContents returns the locally-completed content ids for a chapter.
func (s *Store) CompletedContents(chapterID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, e := range s.contents {
		if e.ChapterID == chapterID && e.Completed {
			ids = append(ids, id)
		}
	}
	return ids
}

// CompletionFlags snapshots the local completion flags for the given
// content ids, defaulting to false for ids the store has never seen.
func (s *Store) CompletionFlags(contentIDs []string) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flags := make(map[string]bool, len(contentIDs))
	for _, id := range contentIDs {
		flags[id] = s.contents[id].Completed
	}
	return flags
}
