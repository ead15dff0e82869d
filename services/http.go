package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	log "github.com/sirupsen/logrus"

	"github.com/orbitschool/orbit_api/docs"
	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/services/handlers"
	"github.com/orbitschool/orbit_api/shared"
)

// authGuard is what the http layer needs from the auth middleware. The
// middleware lives in its own package and is resolved by service id, so
// the dependency stays one-directional.
type authGuard interface {
	RequiredAuth() fiber.Handler
	RequireRole(roles ...string) fiber.Handler
}

// Must match the id the auth middleware registers under.
const authMiddlewareID = "auth"

type HttpService struct {
	context.DefaultService

	authSvc     *AuthService
	courseSvc   *CourseService
	progressSvc *ProgressService
	mediaSvc    *MediaService
	auth        authGuard

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.authSvc = svc.Service(AUTH_SVC).(*AuthService)
	svc.courseSvc = svc.Service(COURSE_SVC).(*CourseService)
	svc.progressSvc = svc.Service(PROGRESS_SVC).(*ProgressService)
	svc.mediaSvc = svc.Service(MEDIA_SVC).(*MediaService)
	svc.auth = svc.Service(authMiddlewareID).(authGuard)

	docs.SwaggerInfo.BasePath = ""

	app := fiber.New(fiber.Config{
		ErrorHandler: svc.handleError,
		BodyLimit:    512 * 1024 * 1024,
	})

	app.Use(recover.New())
	if os.Getenv("LOG_LEVEL") == "TRACE" {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("CORS_ORIGINS"),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(MonitoringMiddleware())

	app.Get("/ping", svc.ping)
	app.Get("/swagger/*", swagger.HandlerDefault)

	svc.registerRoutes(app)

	app.Use(func(c *fiber.Ctx) error {
		return shared.ResponseNotFound(c)
	})

	svc.server = app

	log.WithField("port", svc.port).Info("HTTP server starting")
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) registerRoutes(app *fiber.App) {
	authHandler := handlers.NewAuthHandler(svc.authSvc, svc.progressSvc)
	courseHandler := handlers.NewCourseHandler(svc.courseSvc)
	progressHandler := handlers.NewProgressHandler(svc.progressSvc)
	mediaHandler := handlers.NewMediaHandler(svc.mediaSvc)

	v1 := app.Group("/api/v1")
	v1.Get("/ping", svc.ping)

	v1.Post("/register", authHandler.Register)
	v1.Post("/login", authHandler.Login)

	authed := v1.Group("", svc.auth.RequiredAuth())
	authed.Post("/logout", authHandler.Logout)

	authed.Get("/courses", courseHandler.GetCourses)
	authed.Get("/courses/:courseId", courseHandler.GetCourseDetail)
	authed.Get("/courses/:courseId/navigation", courseHandler.GetNavigation)
	authed.Post("/enrollments", courseHandler.Enroll)

	authed.Post("/progress/events", progressHandler.HandleEvent)
	authed.Post("/progress/quiz", progressHandler.SubmitQuiz)
	authed.Get("/progress/quiz/:contentId/history", progressHandler.GetQuizHistory)
	authed.Get("/progress/courses/:courseId", progressHandler.GetCourseProgress)
	authed.Get("/certificates", progressHandler.GetCertificates)

	authed.Get("/media/:assetId/url", mediaHandler.GetAssetURL)

	admin := authed.Group("/admin", svc.auth.RequireRole(model.RoleAdmin, model.RoleTeacher))
	admin.Post("/courses", courseHandler.CreateCourse)
	admin.Post("/chapters", courseHandler.CreateChapter)
	admin.Post("/contents", courseHandler.CreateContent)
	admin.Post("/courses/:courseId/enrollments/:userId/approve", courseHandler.ApproveEnrollment)

	admin.Post("/media/video", mediaHandler.UploadVideo)
	admin.Post("/media/pdf", mediaHandler.UploadPDF)
	admin.Post("/media/thumbnail", mediaHandler.UploadThumbnail)
	admin.Delete("/media/:assetId", mediaHandler.DeleteAsset)
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")
	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
