package model

import "time"

// ContentProgress is the ground-truth completion row, one per
// (learner, content item). Created lazily on the first completion-relevant
// event and updated idempotently afterwards.
type ContentProgress struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"index:idx_content_progress_pair,unique;not null"`
	ContentID    string     `json:"content_id" gorm:"index:idx_content_progress_pair,unique;not null"`
	ChapterID    string     `json:"chapter_id" gorm:"index;not null"`
	CourseID     string     `json:"course_id" gorm:"index;not null"`
	IsCompleted  bool       `json:"is_completed" gorm:"default:false"`
	LastPosition float64    `json:"last_position"` // seconds, video resume point
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ChapterProgress is the denormalized chapter-complete flag, persisted for
// reporting queries. Derived: true iff every ContentProgress row of the
// chapter's contents is complete.
type ChapterProgress struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	UserID      string     `json:"user_id" gorm:"index:idx_chapter_progress_pair,unique;not null"`
	ChapterID   string     `json:"chapter_id" gorm:"index:idx_chapter_progress_pair,unique;not null"`
	CourseID    string     `json:"course_id" gorm:"index;not null"`
	IsCompleted bool       `json:"is_completed" gorm:"default:false"`
	Percentage  float64    `json:"percentage"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// QuizSubmission records one quiz attempt; completion side effects fire on
// the first passing submission.
type QuizSubmission struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	ContentID string    `json:"content_id" gorm:"index;not null"`
	Score     int       `json:"score" gorm:"not null"`
	Passed    bool      `json:"passed" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}
