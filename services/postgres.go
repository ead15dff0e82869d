package services

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/shared"
)

type PostgresService struct {
	context.DefaultService
	db *gorm.DB

	database string
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "orbit_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			host, user, password, dbname, port, sslmode)
	}

	return ds.DefaultService.Configure(ctx)
}

func (ds *PostgresService) Start() (err error) {
	maxRetries := 10
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to database (attempt %d/%d)...", attempt, maxRetries)

		ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})

		if err == nil {
			sqlDB, dbErr := ds.db.DB()
			if dbErr == nil {
				pingErr := sqlDB.Ping()
				if pingErr == nil {
					log.Println("Successfully connected to database")
					break
				}
				err = pingErr
			} else {
				err = dbErr
			}
		}

		if attempt == maxRetries {
			log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
			return err
		}

		log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
		time.Sleep(retryDelay)

		retryDelay *= 2
		if retryDelay > 10*time.Second {
			retryDelay = 10 * time.Second
		}
	}

	models := []interface{}{
		&model.School{},
		&model.User{},

		&model.Course{},
		&model.Chapter{},
		&model.ContentItem{},
		&model.Enrollment{},

		&model.ContentProgress{},
		&model.ChapterProgress{},
		&model.QuizSubmission{},
		&model.Certificate{},

		&model.MediaAsset{},
	}

	err = ds.db.AutoMigrate(models...)
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *PostgresService) Shutdown() {
	sqlDB, err := ds.db.DB()
	if err == nil {
		sqlDB.Close()
	}
}

func (ds *PostgresService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewNotFoundError(err, "Not Found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewConflictError(err, "Conflict")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return shared.NewBadRequestError(err, "Invalid reference")
	}

	log.WithError(err).Error("Database error occurred")
	return shared.NewInternalError(err, "Database error")
}

// ==================== USER METHODS ====================

func (ds *PostgresService) CreateUser(user *model.User) (*model.User, error) {
	if user.ID == "" {
		id, _ := uuid.NewV7()
		user.ID = id.String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	if err := ds.db.Create(user).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return user, nil
}

func (ds *PostgresService) GetUser(userID string) (*model.User, error) {
	var user model.User
	if err := ds.db.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &user, nil
}

func (ds *PostgresService) GetUserByEmailOrUsername(emailOrUsername string) (*model.User, error) {
	var user model.User
	if err := ds.db.Where("email = ? OR username = ?", emailOrUsername, emailOrUsername).
		First(&user).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &user, nil
}

func (ds *PostgresService) IsUsernameAvailable(username string) (bool, error) {
	var count int64
	err := ds.db.Model(&model.User{}).Where("LOWER(username) = LOWER(?)", username).Count(&count).Error
	if err != nil {
		return false, ds.HandleError(err)
	}
	return count == 0, nil
}

func (ds *PostgresService) IsEmailAvailable(email string) (bool, error) {
	var count int64
	err := ds.db.Model(&model.User{}).Where("LOWER(email) = LOWER(?)", email).Count(&count).Error
	if err != nil {
		return false, ds.HandleError(err)
	}
	return count == 0, nil
}

func (ds *PostgresService) UpdateLastLogin(userID string) error {
	now := time.Now()
	return ds.db.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"last_login": &now,
		"updated_at": now,
	}).Error
}

// ==================== COURSE METHODS ====================

func (ds *PostgresService) CreateCourse(course *model.Course) (*model.Course, error) {
	if course.ID == "" {
		id, _ := uuid.NewV7()
		course.ID = id.String()
	}
	course.CreatedAt = time.Now()
	course.UpdatedAt = time.Now()

	if err := ds.db.Create(course).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return course, nil
}

func (ds *PostgresService) GetCourse(id string) (*model.Course, error) {
	var course model.Course
	if err := ds.db.Where("id = ?", id).First(&course).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &course, nil
}

func (ds *PostgresService) GetCoursesBySchool(schoolID string) ([]model.Course, error) {
	var courses []model.Course
	query := ds.db.Model(&model.Course{}).Where("is_published = ?", true)
	if schoolID != "" {
		query = query.Where("school_id = ?", schoolID)
	}
	if err := query.Order("created_at ASC").Find(&courses).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return courses, nil
}

func (ds *PostgresService) UpdateCourse(course *model.Course) error {
	course.UpdatedAt = time.Now()
	if err := ds.db.Save(course).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

// ==================== CHAPTER METHODS ====================

func (ds *PostgresService) CreateChapter(chapter *model.Chapter) (*model.Chapter, error) {
	if chapter.ID == "" {
		id, _ := uuid.NewV7()
		chapter.ID = id.String()
	}
	chapter.CreatedAt = time.Now()
	chapter.UpdatedAt = time.Now()

	if err := ds.db.Create(chapter).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return chapter, nil
}

func (ds *PostgresService) GetChapter(id string) (*model.Chapter, error) {
	var chapter model.Chapter
	if err := ds.db.Where("id = ?", id).First(&chapter).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &chapter, nil
}

// GetChaptersByCourse returns active chapters ordered by the explicit
// order field, tie-broken by creation time so equal orders stay stable.
func (ds *PostgresService) GetChaptersByCourse(courseID string) ([]model.Chapter, error) {
	var chapters []model.Chapter
	if err := ds.db.Where("course_id = ? AND is_active = ?", courseID, true).
		Order("\"order\" ASC, created_at ASC").Find(&chapters).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return chapters, nil
}

// ==================== CONTENT METHODS ====================

func (ds *PostgresService) CreateContent(content *model.ContentItem) (*model.ContentItem, error) {
	if content.ID == "" {
		id, _ := uuid.NewV7()
		content.ID = id.String()
	}
	content.CreatedAt = time.Now()
	content.UpdatedAt = time.Now()

	if err := ds.db.Create(content).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return content, nil
}

func (ds *PostgresService) GetContent(id string) (*model.ContentItem, error) {
	var content model.ContentItem
	if err := ds.db.Where("id = ?", id).First(&content).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &content, nil
}

func (ds *PostgresService) GetContentsByCourse(courseID string) ([]model.ContentItem, error) {
	var contents []model.ContentItem
	if err := ds.db.Where("course_id = ? AND is_active = ?", courseID, true).
		Order("\"order\" ASC, created_at ASC").Find(&contents).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return contents, nil
}

// ==================== ENROLLMENT METHODS ====================

func (ds *PostgresService) CreateEnrollment(enrollment *model.Enrollment) (*model.Enrollment, error) {
	if enrollment.ID == "" {
		id, _ := uuid.NewV7()
		enrollment.ID = id.String()
	}
	enrollment.CreatedAt = time.Now()
	enrollment.UpdatedAt = time.Now()

	if err := ds.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(enrollment).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return enrollment, nil
}

func (ds *PostgresService) GetEnrollment(userID, courseID string) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	if err := ds.db.Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &enrollment, nil
}

func (ds *PostgresService) ActivateEnrollment(enrollmentID string) error {
	return ds.db.Model(&model.Enrollment{}).Where("id = ?", enrollmentID).Updates(map[string]interface{}{
		"status":     shared.EnrollmentActive,
		"updated_at": time.Now(),
	}).Error
}

// ==================== CONTENT PROGRESS METHODS ====================

// UpsertContentProgress is the idempotent ground-truth write, conflict
// resolved on (user_id, content_id). Marking an already-complete row
// complete again changes nothing.
func (ds *PostgresService) UpsertContentProgress(row *model.ContentProgress) error {
	if row.ID == "" {
		id, _ := uuid.NewV7()
		row.ID = id.String()
	}
	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now
	if row.IsCompleted && row.CompletedAt == nil {
		row.CompletedAt = &now
	}

	assignments := map[string]interface{}{
		"last_position": row.LastPosition,
		"updated_at":    now,
	}
	if row.IsCompleted {
		// Never un-complete on upsert; completed_at keeps its first value.
		assignments["is_completed"] = true
		assignments["completed_at"] = gorm.Expr("COALESCE(content_progresses.completed_at, ?)", now)
	}

	if err := ds.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetContentProgress(userID, contentID string) (*model.ContentProgress, error) {
	var row model.ContentProgress
	if err := ds.db.Where("user_id = ? AND content_id = ?", userID, contentID).
		First(&row).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &row, nil
}

func (ds *PostgresService) GetChapterContentProgress(userID, chapterID string) ([]model.ContentProgress, error) {
	var rows []model.ContentProgress
	if err := ds.db.Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		Find(&rows).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return rows, nil
}

func (ds *PostgresService) GetCourseContentProgress(userID, courseID string) ([]model.ContentProgress, error) {
	var rows []model.ContentProgress
	if err := ds.db.Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&rows).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return rows, nil
}

// ==================== CHAPTER PROGRESS METHODS ====================

// UpsertChapterProgress persists the denormalized chapter flag, conflict
// resolved on (user_id, chapter_id).
func (ds *PostgresService) UpsertChapterProgress(row *model.ChapterProgress) error {
	if row.ID == "" {
		id, _ := uuid.NewV7()
		row.ID = id.String()
	}
	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now
	if row.IsCompleted && row.CompletedAt == nil {
		row.CompletedAt = &now
	}

	assignments := map[string]interface{}{
		"is_completed": row.IsCompleted,
		"percentage":   row.Percentage,
		"updated_at":   now,
	}
	if row.IsCompleted {
		assignments["completed_at"] = gorm.Expr("COALESCE(chapter_progresses.completed_at, ?)", now)
	}

	if err := ds.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chapter_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetChapterProgress(userID, chapterID string) (*model.ChapterProgress, error) {
	var row model.ChapterProgress
	if err := ds.db.Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		First(&row).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &row, nil
}

func (ds *PostgresService) GetCourseChapterProgress(userID, courseID string) ([]model.ChapterProgress, error) {
	var rows []model.ChapterProgress
	if err := ds.db.Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&rows).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return rows, nil
}

// ==================== QUIZ METHODS ====================

func (ds *PostgresService) CreateQuizSubmission(sub *model.QuizSubmission) error {
	if sub.ID == "" {
		id, _ := uuid.NewV7()
		sub.ID = id.String()
	}
	sub.CreatedAt = time.Now()

	if err := ds.db.Create(sub).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetQuizSubmissions(userID, contentID string) ([]model.QuizSubmission, error) {
	var subs []model.QuizSubmission
	if err := ds.db.Where("user_id = ? AND content_id = ?", userID, contentID).
		Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return subs, nil
}

// ==================== CERTIFICATE METHODS ====================

func (ds *PostgresService) CreateCertificate(cert *model.Certificate) error {
	if cert.ID == "" {
		id, _ := uuid.NewV7()
		cert.ID = id.String()
	}
	cert.IssuedAt = time.Now()

	// Re-issuing for an already-certified course is a no-op.
	if err := ds.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(cert).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetCertificate(userID, courseID string) (*model.Certificate, error) {
	var cert model.Certificate
	if err := ds.db.Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&cert).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &cert, nil
}

func (ds *PostgresService) GetUserCertificates(userID string) ([]model.Certificate, error) {
	var certs []model.Certificate
	if err := ds.db.Where("user_id = ?", userID).Order("issued_at DESC").
		Find(&certs).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return certs, nil
}

// ==================== MEDIA ASSET METHODS ====================

func (ds *PostgresService) CreateMediaAsset(asset *model.MediaAsset) error {
	if asset.ID == "" {
		id, _ := uuid.NewV7()
		asset.ID = id.String()
	}
	asset.CreatedAt = time.Now()
	asset.UpdatedAt = time.Now()

	if err := ds.db.Create(asset).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetMediaAsset(id string) (*model.MediaAsset, error) {
	var asset model.MediaAsset
	if err := ds.db.Where("id = ?", id).First(&asset).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &asset, nil
}

func (ds *PostgresService) DeleteMediaAsset(id string) error {
	if err := ds.db.Where("id = ?", id).Delete(&model.MediaAsset{}).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}
