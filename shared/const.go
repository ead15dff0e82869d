package shared

const (
	UserID   = "user_id"
	UserRole = "user_role"

	ContentTypeVideo = "video"
	ContentTypeText  = "text"
	ContentTypePDF   = "pdf"
	ContentTypeQuiz  = "quiz"

	EnrollmentPending = "pending"
	EnrollmentActive  = "active"

	// Remediation messages per failure cause. A missing enrollment needs an
	// administrator, a pending one needs patience, missing content a refresh.
	MsgNoAccess          = "You don't have access to this course. Please contact your school administrator."
	MsgEnrollmentPending = "Your enrollment is pending approval. Please check back later."
	MsgContentNotFound   = "This content could not be found. Try refreshing the page."
)
