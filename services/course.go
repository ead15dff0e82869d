package services

import (
	stdContext "context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/querycache"
	"github.com/orbitschool/orbit_api/shared"
)

type CourseService struct {
	context.DefaultService

	sqlSvc      *PostgresService
	realtimeSvc *RealtimeService

	cache *querycache.Cache
}

const COURSE_SVC = "course_svc"

func (svc CourseService) Id() string {
	return COURSE_SVC
}

func (svc *CourseService) Configure(ctx *context.Context) error {
	svc.cache = querycache.New(
		querycache.WithStaleTime(30*time.Second),
		querycache.WithGCTime(5*time.Minute),
	)
	return svc.DefaultService.Configure(ctx)
}

func (svc *CourseService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.realtimeSvc = svc.Service(REALTIME_SVC).(*RealtimeService)

	svc.cache.StartSweeper(stdContext.Background(), time.Minute)
	return nil
}

// Cache exposes the structure cache so the realtime bridge can
// invalidate it on change notifications.
func (svc *CourseService) Cache() *querycache.Cache {
	return svc.cache
}

// ==================== CATALOG READS ====================

func courseListKey(schoolID string) string {
	return "courses:" + schoolID
}

func courseKey(courseID string) string {
	return "course:" + courseID
}

func courseChaptersKey(courseID string) string {
	return fmt.Sprintf("course:%s:chapters", courseID)
}

func (svc *CourseService) GetCourses(schoolID string) (*dto.CourseCollectionResponse, error) {
	v, err := svc.cache.Get(stdContext.Background(), courseListKey(schoolID), func(ctx stdContext.Context) (interface{}, error) {
		return svc.sqlSvc.GetCoursesBySchool(schoolID)
	})
	if err != nil {
		return nil, err
	}
	courses := v.([]model.Course)

	responses := make([]dto.CourseResponse, len(courses))
	for i, course := range courses {
		responses[i] = svc.mapCourseToResponse(&course)
	}

	return &dto.CourseCollectionResponse{
		Courses: responses,
		Total:   len(courses),
	}, nil
}

func (svc *CourseService) GetCourse(courseID string) (*model.Course, error) {
	v, err := svc.cache.Get(stdContext.Background(), courseKey(courseID), func(ctx stdContext.Context) (interface{}, error) {
		return svc.sqlSvc.GetCourse(courseID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Course), nil
}

// CourseStructure is the ordered chapter/content skeleton of a course,
// shared by the player, navigation and progress recomputes.
type CourseStructure struct {
	Chapters []model.Chapter
	Contents map[string][]model.ContentItem // chapter id -> ordered contents
}

func (cs *CourseStructure) Chapter(chapterID string) *model.Chapter {
	for i := range cs.Chapters {
		if cs.Chapters[i].ID == chapterID {
			return &cs.Chapters[i]
		}
	}
	return nil
}

func (cs *CourseStructure) ContentIDs(chapterID string) []string {
	items := cs.Contents[chapterID]
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func (svc *CourseService) GetCourseStructure(courseID string) (*CourseStructure, error) {
	v, err := svc.cache.Get(stdContext.Background(), courseChaptersKey(courseID), func(ctx stdContext.Context) (interface{}, error) {
		chapters, err := svc.sqlSvc.GetChaptersByCourse(courseID)
		if err != nil {
			return nil, err
		}

		items, err := svc.sqlSvc.GetContentsByCourse(courseID)
		if err != nil {
			return nil, err
		}

		contents := make(map[string][]model.ContentItem, len(chapters))
		for _, item := range items {
			contents[item.ChapterID] = append(contents[item.ChapterID], item)
		}

		return &CourseStructure{Chapters: chapters, Contents: contents}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CourseStructure), nil
}

// ==================== ACCESS ====================

// CheckCourseAccess enforces the access taxonomy: a missing enrollment is
// a forbidden "contact your administrator" failure, a pending one asks
// the learner to wait, and only an active enrollment proceeds.
func (svc *CourseService) CheckCourseAccess(userID, courseID string) error {
	enrollment, err := svc.sqlSvc.GetEnrollment(userID, courseID)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.StatusCode == 404 {
			return shared.NewForbiddenError(nil, shared.MsgNoAccess)
		}
		return err
	}

	if enrollment.Status == shared.EnrollmentPending {
		return shared.NewForbiddenError(nil, shared.MsgEnrollmentPending)
	}

	return nil
}

func (svc *CourseService) Enroll(userID, courseID string) (*dto.EnrollmentResponse, error) {
	if _, err := svc.GetCourse(courseID); err != nil {
		return nil, shared.NewNotFoundError(err, shared.MsgContentNotFound)
	}

	enrollment, err := svc.sqlSvc.CreateEnrollment(&model.Enrollment{
		UserID:   userID,
		CourseID: courseID,
		Status:   shared.EnrollmentPending,
	})
	if err != nil {
		return nil, err
	}

	return &dto.EnrollmentResponse{
		ID:       enrollment.ID,
		UserID:   enrollment.UserID,
		CourseID: enrollment.CourseID,
		Status:   enrollment.Status,
	}, nil
}

func (svc *CourseService) ApproveEnrollment(userID, courseID string) error {
	enrollment, err := svc.sqlSvc.GetEnrollment(userID, courseID)
	if err != nil {
		return err
	}
	return svc.sqlSvc.ActivateEnrollment(enrollment.ID)
}

// ==================== PLAYER ====================

// GetCourseDetail assembles the player view: ordered chapters and
// contents overlaid with the learner's persisted progress. Opening the
// player also ensures the realtime bridge watches this course.
func (svc *CourseService) GetCourseDetail(userID, courseID string) ([]dto.ChapterResponse, error) {
	if err := svc.CheckCourseAccess(userID, courseID); err != nil {
		return nil, err
	}

	structure, err := svc.GetCourseStructure(courseID)
	if err != nil {
		return nil, err
	}
	if len(structure.Chapters) == 0 {
		return nil, shared.NewNotFoundError(nil, shared.MsgContentNotFound)
	}

	svc.realtimeSvc.EnsureCourse(courseID)

	contentRows, err := svc.sqlSvc.GetCourseContentProgress(userID, courseID)
	if err != nil {
		return nil, err
	}
	chapterRows, err := svc.sqlSvc.GetCourseChapterProgress(userID, courseID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]*model.ContentProgress, len(contentRows))
	for i := range contentRows {
		completed[contentRows[i].ContentID] = &contentRows[i]
	}
	chapterFlags := make(map[string]*model.ChapterProgress, len(chapterRows))
	for i := range chapterRows {
		chapterFlags[chapterRows[i].ChapterID] = &chapterRows[i]
	}

	responses := make([]dto.ChapterResponse, len(structure.Chapters))
	for i, chapter := range structure.Chapters {
		items := structure.Contents[chapter.ID]
		contentResponses := make([]dto.ContentResponse, len(items))
		for j, item := range items {
			contentResponses[j] = svc.mapContentToResponse(&item)
			if row, ok := completed[item.ID]; ok {
				contentResponses[j].IsCompleted = row.IsCompleted
				contentResponses[j].LastPosition = row.LastPosition
			}
		}

		responses[i] = dto.ChapterResponse{
			ID:          chapter.ID,
			CourseID:    chapter.CourseID,
			Title:       chapter.Title,
			Order:       chapter.Order,
			Description: chapter.Description,
			Contents:    contentResponses,
		}
		if row, ok := chapterFlags[chapter.ID]; ok {
			responses[i].IsCompleted = row.IsCompleted
			responses[i].Percentage = row.Percentage
		}
	}

	return responses, nil
}

func (svc *CourseService) GetNavigation(userID, courseID, chapterID, contentID string) (*dto.NavigationResponse, error) {
	if err := svc.CheckCourseAccess(userID, courseID); err != nil {
		return nil, err
	}

	structure, err := svc.GetCourseStructure(courseID)
	if err != nil {
		return nil, err
	}
	if structure.Chapter(chapterID) == nil {
		return nil, shared.NewNotFoundError(nil, shared.MsgContentNotFound)
	}

	return &dto.NavigationResponse{
		Next:     NextTarget(structure.Chapters, structure.Contents, chapterID, contentID),
		Previous: PreviousTarget(structure.Contents, chapterID, contentID),
	}, nil
}

// ==================== ADMIN METHODS ====================

func (svc *CourseService) CreateCourse(req dto.CreateCourseRequest) (*dto.CourseResponse, error) {
	course, err := svc.sqlSvc.CreateCourse(&model.Course{
		SchoolID:    req.SchoolID,
		Title:       req.Title,
		Description: req.Description,
		Level:       req.Level,
		IsPublished: true,
	})
	if err != nil {
		return nil, err
	}

	svc.publishChange("courses", course.ID, "")

	response := svc.mapCourseToResponse(course)
	return &response, nil
}

func (svc *CourseService) CreateChapter(req dto.CreateChapterRequest) (*model.Chapter, error) {
	if _, err := svc.sqlSvc.GetCourse(req.CourseID); err != nil {
		return nil, fmt.Errorf("course not found: %w", err)
	}

	chapter, err := svc.sqlSvc.CreateChapter(&model.Chapter{
		CourseID:    req.CourseID,
		Title:       req.Title,
		Order:       req.Order,
		Description: req.Description,
		IsActive:    true,
	})
	if err != nil {
		return nil, err
	}

	svc.publishChange("chapters", chapter.CourseID, chapter.ID)
	return chapter, nil
}

func (svc *CourseService) CreateContent(req dto.CreateContentRequest) (*model.ContentItem, error) {
	chapter, err := svc.sqlSvc.GetChapter(req.ChapterID)
	if err != nil {
		return nil, fmt.Errorf("chapter not found: %w", err)
	}

	var questionsJSON json.RawMessage
	if len(req.Questions) > 0 {
		questions := make([]model.Question, len(req.Questions))
		for i, q := range req.Questions {
			if q.ID == "" {
				q.ID = fmt.Sprintf("q_%d", i+1)
			}
			questions[i] = model.Question{
				ID:       q.ID,
				Type:     q.Type,
				Question: q.Question,
				Options:  q.Options,
				Answer:   q.Answer,
				Points:   q.Points,
				Metadata: q.Metadata,
			}
		}
		questionsJSON, err = json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal questions: %v", err)
		}
	}

	content, err := svc.sqlSvc.CreateContent(&model.ContentItem{
		ChapterID:     req.ChapterID,
		CourseID:      chapter.CourseID,
		Title:         req.Title,
		ContentType:   req.ContentType,
		Order:         req.Order,
		Body:          req.Body,
		FileURL:       req.FileURL,
		VideoDuration: req.VideoDuration,
		Questions:     questionsJSON,
		IsActive:      true,
	})
	if err != nil {
		return nil, err
	}

	svc.publishChange("chapter_contents", content.CourseID, content.ChapterID)
	return content, nil
}

func (svc *CourseService) publishChange(table, courseID, chapterID string) {
	err := svc.realtimeSvc.PublishChange(stdContext.Background(), ChangeEvent{
		Table:     table,
		CourseID:  courseID,
		ChapterID: chapterID,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to publish change notification")
	}
}

// ==================== QUIZ VALIDATION ====================

func (svc *CourseService) ValidateQuizAnswers(content *model.ContentItem, userAnswers map[string]interface{}) (score, totalPoints int, passed bool, err error) {
	var questions []model.Question
	if err := json.Unmarshal(content.Questions, &questions); err != nil {
		return 0, 0, false, fmt.Errorf("failed to parse quiz questions: %v", err)
	}

	earnedPoints := 0
	for _, question := range questions {
		totalPoints += question.Points

		userAnswer, exists := userAnswers[question.ID]
		if exists && svc.isAnswerCorrect(question, userAnswer) {
			earnedPoints += question.Points
		}
	}

	if totalPoints == 0 {
		return 100, 0, true, nil
	}

	score = (earnedPoints * 100) / totalPoints
	return score, totalPoints, score >= quizPassScore, nil
}

const quizPassScore = 60

func (svc *CourseService) isAnswerCorrect(question model.Question, userAnswer interface{}) bool {
	switch question.Type {
	case "multiple_choice", "fill_blank":
		correctAnswer, ok1 := question.Answer.(string)
		userAnswerStr, ok2 := userAnswer.(string)
		if ok1 && ok2 {
			return strings.EqualFold(strings.TrimSpace(correctAnswer), strings.TrimSpace(userAnswerStr))
		}
		return question.Answer == userAnswer
	}

	return false
}

// ==================== MAPPERS ====================

func (svc *CourseService) mapCourseToResponse(course *model.Course) dto.CourseResponse {
	return dto.CourseResponse{
		ID:           course.ID,
		SchoolID:     course.SchoolID,
		Title:        course.Title,
		Description:  course.Description,
		ThumbnailURL: course.ThumbnailURL,
		Level:        course.Level,
		IsPublished:  course.IsPublished,
	}
}

func (svc *CourseService) mapContentToResponse(content *model.ContentItem) dto.ContentResponse {
	response := dto.ContentResponse{
		ID:            content.ID,
		ChapterID:     content.ChapterID,
		CourseID:      content.CourseID,
		Title:         content.Title,
		ContentType:   content.ContentType,
		Order:         content.Order,
		Body:          content.Body,
		FileURL:       content.FileURL,
		VideoDuration: content.VideoDuration,
	}

	if content.ContentType == shared.ContentTypeQuiz && content.Questions != nil {
		var rawQuestions []model.Question
		if err := json.Unmarshal(content.Questions, &rawQuestions); err != nil {
			log.WithError(err).WithField("content_id", content.ID).Warn("Failed to unmarshal quiz questions")
		} else {
			questions := make([]dto.QuestionResponse, len(rawQuestions))
			for i, q := range rawQuestions {
				questions[i] = dto.QuestionResponse{
					ID:       q.ID,
					Type:     q.Type,
					Question: q.Question,
					Options:  q.Options,
					Points:   q.Points,
					Metadata: q.Metadata,
					// The answer never leaves the server.
				}
			}
			response.Questions = questions
		}
	}

	return response
}
