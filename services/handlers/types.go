package handlers

import (
	"mime/multipart"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/model"
)

type AuthServiceInterface interface {
	Register(req dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(req dto.LoginRequest) (*dto.LoginResponse, error)
}

type CourseServiceInterface interface {
	GetCourses(schoolID string) (*dto.CourseCollectionResponse, error)
	GetCourseDetail(userID, courseID string) ([]dto.ChapterResponse, error)
	GetNavigation(userID, courseID, chapterID, contentID string) (*dto.NavigationResponse, error)
	Enroll(userID, courseID string) (*dto.EnrollmentResponse, error)
	ApproveEnrollment(userID, courseID string) error
	CreateCourse(req dto.CreateCourseRequest) (*dto.CourseResponse, error)
	CreateChapter(req dto.CreateChapterRequest) (*model.Chapter, error)
	CreateContent(req dto.CreateContentRequest) (*model.ContentItem, error)
}

type ProgressServiceInterface interface {
	HandleEvent(userID string, req dto.ProgressEventRequest) (*dto.ProgressEventResponse, error)
	SubmitQuiz(userID string, req dto.SubmitQuizRequest) (*dto.SubmitQuizResponse, error)
	GetQuizHistory(userID, contentID string) ([]dto.QuizSubmissionResponse, error)
	GetCourseProgress(userID, courseID string) (*dto.CourseProgressResponse, error)
	GetCertificates(userID string) ([]dto.CertificateResponse, error)
	CloseSession(userID string)
}

type MediaServiceInterface interface {
	UploadVideo(uploadedBy string, file *multipart.FileHeader) (*dto.MediaUploadResponse, error)
	UploadPDF(uploadedBy string, file *multipart.FileHeader) (*dto.MediaUploadResponse, error)
	UploadThumbnail(uploadedBy string, file *multipart.FileHeader) (*dto.MediaUploadResponse, error)
	GetAssetURL(assetID string) (string, error)
	DeleteAsset(assetID string) error
}
