package dto

import "encoding/json"

type CreateCourseRequest struct {
	SchoolID    string `json:"school_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Level       string `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
}

func (r CreateCourseRequest) Validate() error {
	return validate.Struct(r)
}

type CreateChapterRequest struct {
	CourseID    string `json:"course_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Order       int    `json:"order" validate:"gte=0"`
	Description string `json:"description"`
}

func (r CreateChapterRequest) Validate() error {
	return validate.Struct(r)
}

type CreateContentRequest struct {
	ChapterID     string            `json:"chapter_id" validate:"required"`
	Title         string            `json:"title" validate:"required,max=200"`
	ContentType   string            `json:"content_type" validate:"required,oneof=video text pdf quiz"`
	Order         int               `json:"order" validate:"gte=0"`
	Body          string            `json:"body"`
	FileURL       string            `json:"file_url"`
	VideoDuration float64           `json:"video_duration" validate:"gte=0"`
	Questions     []QuestionRequest `json:"questions" validate:"dive"`
}

func (r CreateContentRequest) Validate() error {
	return validate.Struct(r)
}

type QuestionRequest struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type" validate:"required,oneof=multiple_choice fill_blank"`
	Question string                 `json:"question" validate:"required"`
	Options  []string               `json:"options"`
	Answer   interface{}            `json:"answer" validate:"required"`
	Points   int                    `json:"points" validate:"gte=0"`
	Metadata map[string]interface{} `json:"metadata"`
}

type CourseResponse struct {
	ID           string  `json:"id"`
	SchoolID     string  `json:"school_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Level        string  `json:"level"`
	IsPublished  bool    `json:"is_published"`
	ChapterCount int     `json:"chapter_count"`
	Progress     float64 `json:"progress"`
}

type CourseCollectionResponse struct {
	Courses []CourseResponse `json:"courses"`
	Total   int              `json:"total"`
}

type ChapterResponse struct {
	ID          string            `json:"id"`
	CourseID    string            `json:"course_id"`
	Title       string            `json:"title"`
	Order       int               `json:"order"`
	Description string            `json:"description"`
	IsCompleted bool              `json:"is_completed"`
	Percentage  float64           `json:"percentage"`
	Contents    []ContentResponse `json:"contents"`
}

type ContentResponse struct {
	ID            string             `json:"id"`
	ChapterID     string             `json:"chapter_id"`
	CourseID      string             `json:"course_id"`
	Title         string             `json:"title"`
	ContentType   string             `json:"content_type"`
	Order         int                `json:"order"`
	Body          string             `json:"body,omitempty"`
	FileURL       string             `json:"file_url,omitempty"`
	VideoDuration float64            `json:"video_duration,omitempty"`
	Questions     []QuestionResponse `json:"questions,omitempty"`
	IsCompleted   bool               `json:"is_completed"`
	LastPosition  float64            `json:"last_position,omitempty"`
}

// QuestionResponse never carries the answer.
type QuestionResponse struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Question string                 `json:"question"`
	Options  []string               `json:"options,omitempty"`
	Points   int                    `json:"points"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RawQuestions is kept around for admin round-trips.
type RawQuestions = json.RawMessage

// NavigationTarget points at a content item the player should move to.
type NavigationTarget struct {
	ChapterID string `json:"chapter_id"`
	ContentID string `json:"content_id"`
}

type NavigationResponse struct {
	Next     *NavigationTarget `json:"next,omitempty"`
	Previous *NavigationTarget `json:"previous,omitempty"`
}

type EnrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

func (r EnrollRequest) Validate() error {
	return validate.Struct(r)
}

type EnrollmentResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	Status   string `json:"status"`
}
