package model

import (
	"encoding/json"
	"time"
)

type Course struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	SchoolID     string    `json:"school_id" gorm:"index;not null"`
	Title        string    `json:"title" gorm:"not null"`
	Description  string    `json:"description" gorm:"type:text"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Level        string    `json:"level"` // beginner, intermediate, advanced
	IsPublished  bool      `json:"is_published" gorm:"default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Chapter struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	CourseID    string    `json:"course_id" gorm:"index;not null"`
	Title       string    `json:"title" gorm:"not null"`
	Order       int       `json:"order" gorm:"not null"` // Chapter order within course
	Description string    `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationship
	Course Course `json:"course" gorm:"foreignKey:CourseID"`
}

// ContentItem is a single learning unit inside a chapter. Immutable once
// the course is published; ordering within the chapter is explicit.
type ContentItem struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	ChapterID     string          `json:"chapter_id" gorm:"index;not null"`
	CourseID      string          `json:"course_id" gorm:"index;not null"`
	Title         string          `json:"title" gorm:"not null"`
	ContentType   string          `json:"content_type" gorm:"not null"` // video, text, pdf, quiz
	Order         int             `json:"order" gorm:"not null"`
	Body          string          `json:"body" gorm:"type:text"`
	FileURL       string          `json:"file_url"`
	VideoDuration float64         `json:"video_duration"` // seconds
	Questions     json.RawMessage `json:"questions" gorm:"type:text"`
	IsActive      bool            `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Relationship
	Chapter Chapter `json:"chapter" gorm:"foreignKey:ChapterID"`
}

// Question for quiz content, stored as a JSON array on the content item.
type Question struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"` // multiple_choice, fill_blank
	Question string                 `json:"question"`
	Options  []string               `json:"options,omitempty"`
	Answer   interface{}            `json:"answer"`
	Points   int                    `json:"points"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type Enrollment struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index:idx_enrollment_user_course,unique;not null"`
	CourseID  string    `json:"course_id" gorm:"index:idx_enrollment_user_course,unique;not null"`
	Status    string    `json:"status" gorm:"default:pending"` // pending, active
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Certificate struct {
	ID       string    `json:"id" gorm:"primaryKey"`
	UserID   string    `json:"user_id" gorm:"index:idx_certificate_user_course,unique;not null"`
	CourseID string    `json:"course_id" gorm:"index:idx_certificate_user_course,unique;not null"`
	IssuedAt time.Time `json:"issued_at"`
	FileURL  string    `json:"file_url"`
}
