package dto

// ProgressEventRequest is the viewer-to-server completion contract. All
// content types converge on it: videos report positions and an ended flag,
// text/pdf report dwell or a manual mark-complete, quizzes submit answers
// through their own endpoint.
type ProgressEventRequest struct {
	ContentID string  `json:"content_id" validate:"required"`
	Event     string  `json:"event" validate:"required,oneof=viewed position ended mark_complete"`
	Position  float64 `json:"position" validate:"gte=0"` // seconds, for video
}

func (r ProgressEventRequest) Validate() error {
	return validate.Struct(r)
}

type ProgressEventResponse struct {
	ContentID          string   `json:"content_id"`
	State              string   `json:"state"`
	ContentCompleted   bool     `json:"content_completed"`
	ChapterCompleted   bool     `json:"chapter_completed"`
	ChapterPercent     float64  `json:"chapter_percent"`
	CompletedInChapter []string `json:"completed_in_chapter"`
	Saving             bool     `json:"saving"`
}

type SubmitQuizRequest struct {
	ContentID string                 `json:"content_id" validate:"required"`
	Answers   map[string]interface{} `json:"answers" validate:"required"`
}

func (r SubmitQuizRequest) Validate() error {
	return validate.Struct(r)
}

type SubmitQuizResponse struct {
	Score            int     `json:"score"`
	Passed           bool    `json:"passed"`
	TotalPoints      int     `json:"total_points"`
	ContentCompleted bool    `json:"content_completed"`
	ChapterCompleted bool    `json:"chapter_completed"`
	ChapterPercent   float64 `json:"chapter_percent"`
}

type QuizSubmissionResponse struct {
	ID          string `json:"id"`
	ContentID   string `json:"content_id"`
	Score       int    `json:"score"`
	Passed      bool   `json:"passed"`
	SubmittedAt string `json:"submitted_at"`
}

type CourseProgressResponse struct {
	CourseID       string                    `json:"course_id"`
	Percentage     float64                   `json:"percentage"`
	Completed      bool                      `json:"completed"`
	Chapters       []ChapterProgressResponse `json:"chapters"`
	CertificateURL string                    `json:"certificate_url,omitempty"`
}

type ChapterProgressResponse struct {
	ChapterID   string   `json:"chapter_id"`
	IsCompleted bool     `json:"is_completed"`
	Percentage  float64  `json:"percentage"`
	Completed   []string `json:"completed_content_ids"`
}

type CertificateResponse struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	IssuedAt string `json:"issued_at"`
	FileURL  string `json:"file_url"`
}
