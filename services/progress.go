package services

import (
	stdContext "context"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/progress"
	"github.com/orbitschool/orbit_api/shared"
)

// progressPersistence is the slice of the SQL layer the protocol writes
// through. PostgresService satisfies it; tests substitute an in-memory
// implementation.
type progressPersistence interface {
	GetContent(id string) (*model.ContentItem, error)
	GetContentProgress(userID, contentID string) (*model.ContentProgress, error)
	UpsertContentProgress(row *model.ContentProgress) error
	GetChapterContentProgress(userID, chapterID string) ([]model.ContentProgress, error)
	UpsertChapterProgress(row *model.ChapterProgress) error
	GetCourseContentProgress(userID, courseID string) ([]model.ContentProgress, error)
	GetCourseChapterProgress(userID, courseID string) ([]model.ChapterProgress, error)
	CreateQuizSubmission(sub *model.QuizSubmission) error
	GetQuizSubmissions(userID, contentID string) ([]model.QuizSubmission, error)
	CreateCertificate(cert *model.Certificate) error
	GetCertificate(userID, courseID string) (*model.Certificate, error)
	GetUserCertificates(userID string) ([]model.Certificate, error)
}

// courseReader is what the protocol needs from the catalog side.
type courseReader interface {
	CheckCourseAccess(userID, courseID string) error
	GetCourseStructure(courseID string) (*CourseStructure, error)
	ValidateQuizAnswers(content *model.ContentItem, userAnswers map[string]interface{}) (score, totalPoints int, passed bool, err error)
}

// changePublisher emits change notifications to the realtime bridge.
type changePublisher interface {
	PublishChange(ctx stdContext.Context, ev ChangeEvent) error
}

// ProgressService drives the completion reconciliation protocol: viewer
// events flip the session's optimistic store immediately, a debounced
// one-shot write persists each completion, and every completion event
// triggers a chapter recompute that merges the optimistic store with the
// persisted rows and pushes divergences in the right direction.
type ProgressService struct {
	context.DefaultService

	sqlSvc      progressPersistence
	courseSvc   courseReader
	realtimeSvc changePublisher

	mu       sync.Mutex
	sessions map[string]*learnerSession

	sessionTTL time.Duration
	dwell      time.Duration
	debounce   time.Duration
}

// learnerSession is the per-learner slice of optimistic state. It lives
// for the browsing session and is rebuilt from persisted rows on the
// next one; it is never the sole record of a completion.
type learnerSession struct {
	userID string
	store  *progress.Store

	mu             sync.Mutex
	trackers       map[string]*progress.Tracker
	dwellTimers    map[string]*time.Timer
	chapterWritten map[string]bool

	lastSeen time.Time
}

const PROGRESS_SVC = "progress_svc"

const sessionTTL = 45 * time.Minute

func (svc ProgressService) Id() string {
	return PROGRESS_SVC
}

func (svc *ProgressService) Configure(ctx *context.Context) error {
	svc.sessions = make(map[string]*learnerSession)
	svc.sessionTTL = sessionTTL
	svc.dwell = progress.TextDwell
	svc.debounce = progress.ConfirmDebounce
	return svc.DefaultService.Configure(ctx)
}

func (svc *ProgressService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.courseSvc = svc.Service(COURSE_SVC).(*CourseService)
	svc.realtimeSvc = svc.Service(REALTIME_SVC).(*RealtimeService)

	go svc.expireSessions()
	return nil
}

func (svc *ProgressService) expireSessions() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-svc.sessionTTL)
		svc.mu.Lock()
		for userID, sess := range svc.sessions {
			if sess.lastSeen.Before(cutoff) {
				sess.close()
				delete(svc.sessions, userID)
			}
		}
		svc.mu.Unlock()
	}
}

func (svc *ProgressService) session(userID string) *learnerSession {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	sess, ok := svc.sessions[userID]
	if !ok {
		sess = &learnerSession{
			userID:         userID,
			store:          progress.NewStore(),
			trackers:       make(map[string]*progress.Tracker),
			dwellTimers:    make(map[string]*time.Timer),
			chapterWritten: make(map[string]bool),
		}
		svc.sessions[userID] = sess
	}
	sess.lastSeen = time.Now()
	return sess
}

// confirmInFlight reports whether the item's tracker still owns the
// pending server write for a completion.
func (sess *learnerSession) confirmInFlight(contentID string) bool {
	sess.mu.Lock()
	t, ok := sess.trackers[contentID]
	sess.mu.Unlock()
	if ok && t.ConfirmPending() {
		return true
	}
	return sess.store.IsSaving(contentID)
}

func (sess *learnerSession) close() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, t := range sess.trackers {
		t.Cancel()
	}
	for _, timer := range sess.dwellTimers {
		timer.Stop()
	}
}

// CloseSession drops a learner's optimistic state, e.g. on logout.
// Anything unconfirmed is recovered by reconciliation on the next mount.
func (svc *ProgressService) CloseSession(userID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if sess, ok := svc.sessions[userID]; ok {
		sess.close()
		delete(svc.sessions, userID)
	}
}

// ==================== VIEWER EVENTS ====================

// HandleEvent is the shared completion contract for every content type.
// Videos send position/ended, text and PDF send viewed (starting the
// dwell timer) or mark_complete, quizzes complete through SubmitQuiz.
func (svc *ProgressService) HandleEvent(userID string, req dto.ProgressEventRequest) (*dto.ProgressEventResponse, error) {
	content, err := svc.sqlSvc.GetContent(req.ContentID)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.StatusCode == 404 {
			return nil, shared.NewNotFoundError(nil, shared.MsgContentNotFound)
		}
		return nil, err
	}

	if err := svc.courseSvc.CheckCourseAccess(userID, content.CourseID); err != nil {
		return nil, err
	}

	sess := svc.session(userID)
	tracker := svc.tracker(sess, content)

	switch req.Event {
	case "viewed":
		svc.onViewed(sess, tracker, content)
	case "position":
		svc.onPosition(sess, tracker, content, req.Position)
	case "ended":
		if content.ContentType == shared.ContentTypeVideo {
			svc.stopDwell(sess, content.ID)
			tracker.Complete(stdContext.Background())
			svc.recomputeChapter(userID, sess, content.CourseID, content.ChapterID)
		}
	case "mark_complete":
		svc.stopDwell(sess, content.ID)
		tracker.Complete(stdContext.Background())
		svc.recomputeChapter(userID, sess, content.CourseID, content.ChapterID)
	}

	return svc.eventResponse(sess, tracker, content), nil
}

// tracker returns the session's state machine for a content item,
// creating it on first touch. Creation checks the server for an existing
// completed row so already-finished content short-circuits and never
// re-runs completion side effects.
func (svc *ProgressService) tracker(sess *learnerSession, content *model.ContentItem) *progress.Tracker {
	sess.mu.Lock()
	if t, ok := sess.trackers[content.ID]; ok {
		sess.mu.Unlock()
		return t
	}
	sess.mu.Unlock()

	confirmed := false
	row, err := svc.sqlSvc.GetContentProgress(sess.userID, content.ID)
	if err == nil {
		confirmed = row.IsCompleted
		if row.LastPosition > 0 {
			sess.store.SetVideoPosition(content.ID, row.LastPosition)
		}
	}

	userID := sess.userID
	contentID, chapterID, courseID := content.ID, content.ChapterID, content.CourseID

	t := progress.NewTracker(sess.store, contentID, chapterID, courseID,
		func(ctx stdContext.Context) error {
			return svc.confirmCompletion(ctx, userID, contentID, chapterID, courseID)
		},
		progress.WithDebounce(svc.debounce),
		progress.WithOnConfirmed(func() {
			svc.recomputeChapter(userID, sess, courseID, chapterID)
		}),
	)
	t.Begin(confirmed)

	sess.mu.Lock()
	// Another event may have raced us here; keep the first tracker.
	if existing, ok := sess.trackers[content.ID]; ok {
		sess.mu.Unlock()
		return existing
	}
	sess.trackers[content.ID] = t
	sess.mu.Unlock()

	if confirmed {
		svc.recomputeChapter(userID, sess, courseID, chapterID)
	}

	return t
}

func (svc *ProgressService) onViewed(sess *learnerSession, tracker *progress.Tracker, content *model.ContentItem) {
	switch content.ContentType {
	case shared.ContentTypeText, shared.ContentTypePDF:
		if tracker.State() == progress.ServerConfirmed || tracker.State() == progress.LocallyComplete {
			return
		}
		sess.mu.Lock()
		if _, running := sess.dwellTimers[content.ID]; running {
			sess.mu.Unlock()
			return
		}
		contentID := content.ID
		courseID, chapterID := content.CourseID, content.ChapterID
		userID := sess.userID
		sess.dwellTimers[contentID] = time.AfterFunc(svc.dwell, func() {
			svc.stopDwell(sess, contentID)
			tracker.Complete(stdContext.Background())
			svc.recomputeChapter(userID, sess, courseID, chapterID)
		})
		sess.mu.Unlock()
	default:
		// Videos and quizzes complete through their own triggers; a view
		// still reconciles so server-ahead rows sync into the store.
		svc.recomputeChapter(sess.userID, sess, content.CourseID, content.ChapterID)
	}
}

func (svc *ProgressService) onPosition(sess *learnerSession, tracker *progress.Tracker, content *model.ContentItem, position float64) {
	if content.ContentType != shared.ContentTypeVideo {
		return
	}

	sess.store.SetVideoPosition(content.ID, position)

	// Persist the resume point opportunistically; losing one is harmless.
	err := svc.sqlSvc.UpsertContentProgress(&model.ContentProgress{
		UserID:       sess.userID,
		ContentID:    content.ID,
		ChapterID:    content.ChapterID,
		CourseID:     content.CourseID,
		LastPosition: position,
	})
	if err != nil {
		log.WithError(err).WithField("content_id", content.ID).Debug("Failed to save playback position")
	}

	if progress.VideoComplete(position, content.VideoDuration) {
		tracker.Complete(stdContext.Background())
		svc.recomputeChapter(sess.userID, sess, content.CourseID, content.ChapterID)
	}
}

func (svc *ProgressService) stopDwell(sess *learnerSession, contentID string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if timer, ok := sess.dwellTimers[contentID]; ok {
		timer.Stop()
		delete(sess.dwellTimers, contentID)
	}
}

func (svc *ProgressService) eventResponse(sess *learnerSession, tracker *progress.Tracker, content *model.ContentItem) *dto.ProgressEventResponse {
	return &dto.ProgressEventResponse{
		ContentID:          content.ID,
		State:              tracker.State().String(),
		ContentCompleted:   sess.store.IsContentCompleted(content.ID),
		ChapterCompleted:   sess.store.IsChapterCompleted(content.ChapterID),
		ChapterPercent:     sess.store.ChapterPercentage(content.ChapterID),
		CompletedInChapter: sess.store.CompletedContents(content.ChapterID),
		Saving:             sess.store.IsSaving(content.ID),
	}
}

// ==================== CONFIRMATION & RECONCILIATION ====================

// confirmCompletion is the tracker's one-shot server write: the
// idempotent ground-truth upsert for (learner, content).
func (svc *ProgressService) confirmCompletion(ctx stdContext.Context, userID, contentID, chapterID, courseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess := svc.session(userID)
	err := svc.sqlSvc.UpsertContentProgress(&model.ContentProgress{
		UserID:       userID,
		ContentID:    contentID,
		ChapterID:    chapterID,
		CourseID:     courseID,
		IsCompleted:  true,
		LastPosition: sess.store.GetVideoPosition(contentID),
	})
	if err != nil {
		recordConfirm("error")
		return err
	}
	recordConfirm("success")
	return nil
}

// recomputeChapter runs one reconciliation pass for a chapter: merge the
// optimistic store with the persisted rows, sync server-ahead flags into
// the store, write local-ahead flags out, and issue the chapter-level
// upsert once the aggregate flips.
func (svc *ProgressService) recomputeChapter(userID string, sess *learnerSession, courseID, chapterID string) {
	structure, err := svc.courseSvc.GetCourseStructure(courseID)
	if err != nil {
		log.WithError(err).WithField("course_id", courseID).Warn("Chapter recompute skipped, structure unavailable")
		return
	}

	contentIDs := structure.ContentIDs(chapterID)
	if len(contentIDs) == 0 {
		return
	}

	remote := make(map[string]bool, len(contentIDs))
	rows, err := svc.sqlSvc.GetChapterContentProgress(userID, chapterID)
	if err != nil {
		log.WithError(err).WithField("chapter_id", chapterID).Warn("Chapter recompute using local flags only")
	} else {
		for _, row := range rows {
			remote[row.ContentID] = row.IsCompleted
		}
	}

	local := sess.store.CompletionFlags(contentIDs)
	result := progress.ReconcileChapter(contentIDs, local, remote)
	result.Apply(sess.store, chapterID, courseID)

	// Local-ahead completions are pushed to the server here; failures are
	// retried on the next pass rather than rolled back. Items whose own
	// debounced write is still scheduled or in flight are left to their
	// tracker, so a fresh completion produces exactly one row write.
	for _, d := range result.Divergences {
		recordDivergence(d.Direction.String())
		if d.Direction != progress.LocalAhead {
			continue
		}
		if sess.confirmInFlight(d.ContentID) {
			continue
		}
		err := svc.sqlSvc.UpsertContentProgress(&model.ContentProgress{
			UserID:      userID,
			ContentID:   d.ContentID,
			ChapterID:   chapterID,
			CourseID:    courseID,
			IsCompleted: true,
		})
		if err != nil {
			log.WithError(err).WithField("content_id", d.ContentID).Warn("Failed to persist local completion, will retry")
		}
	}

	if result.ChapterComplete {
		svc.completeChapter(userID, sess, courseID, chapterID, result.Percentage)
	} else {
		err := svc.sqlSvc.UpsertChapterProgress(&model.ChapterProgress{
			UserID:      userID,
			ChapterID:   chapterID,
			CourseID:    courseID,
			IsCompleted: false,
			Percentage:  result.Percentage,
		})
		if err != nil {
			log.WithError(err).WithField("chapter_id", chapterID).Debug("Failed to persist chapter percentage")
		}
	}
}

// completeChapter issues the chapter-level upsert exactly once per
// session and checks whether the whole course is now done.
func (svc *ProgressService) completeChapter(userID string, sess *learnerSession, courseID, chapterID string, percentage float64) {
	sess.mu.Lock()
	already := sess.chapterWritten[chapterID]
	if !already {
		sess.chapterWritten[chapterID] = true
	}
	sess.mu.Unlock()
	if already {
		return
	}

	err := svc.sqlSvc.UpsertChapterProgress(&model.ChapterProgress{
		UserID:      userID,
		ChapterID:   chapterID,
		CourseID:    courseID,
		IsCompleted: true,
		Percentage:  percentage,
	})
	if err != nil {
		// Allow a later pass to retry the chapter write.
		sess.mu.Lock()
		sess.chapterWritten[chapterID] = false
		sess.mu.Unlock()
		log.WithError(err).WithField("chapter_id", chapterID).Warn("Failed to persist chapter completion, will retry")
		return
	}

	recordChapterCompletion()

	if err := svc.realtimeSvc.PublishChange(stdContext.Background(), ChangeEvent{
		Table:     "course_progress",
		CourseID:  courseID,
		ChapterID: chapterID,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish progress change")
	}

	svc.maybeIssueCertificate(userID, courseID)
}

// maybeIssueCertificate awards the course certificate once every chapter
// has a completed row. Reads chapter-level rows only, matching what the
// reporting surfaces consume.
func (svc *ProgressService) maybeIssueCertificate(userID, courseID string) {
	structure, err := svc.courseSvc.GetCourseStructure(courseID)
	if err != nil {
		return
	}

	rows, err := svc.sqlSvc.GetCourseChapterProgress(userID, courseID)
	if err != nil {
		return
	}

	completed := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.IsCompleted {
			completed[row.ChapterID] = true
		}
	}

	for _, chapter := range structure.Chapters {
		if !completed[chapter.ID] {
			return
		}
	}

	if err := svc.sqlSvc.CreateCertificate(&model.Certificate{
		UserID:   userID,
		CourseID: courseID,
	}); err != nil {
		log.WithError(err).WithField("course_id", courseID).Warn("Failed to issue certificate")
		return
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"course_id": courseID,
	}).Info("Course completed, certificate issued")
}

// ==================== QUIZ ====================

func (svc *ProgressService) SubmitQuiz(userID string, req dto.SubmitQuizRequest) (*dto.SubmitQuizResponse, error) {
	content, err := svc.sqlSvc.GetContent(req.ContentID)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.StatusCode == 404 {
			return nil, shared.NewNotFoundError(nil, shared.MsgContentNotFound)
		}
		return nil, err
	}
	if content.ContentType != shared.ContentTypeQuiz {
		return nil, shared.NewBadRequestError(nil, "Content is not a quiz")
	}

	if err := svc.courseSvc.CheckCourseAccess(userID, content.CourseID); err != nil {
		return nil, err
	}

	score, totalPoints, passed, err := svc.courseSvc.ValidateQuizAnswers(content, req.Answers)
	if err != nil {
		return nil, err
	}

	if err := svc.sqlSvc.CreateQuizSubmission(&model.QuizSubmission{
		UserID:    userID,
		ContentID: content.ID,
		Score:     score,
		Passed:    passed,
	}); err != nil {
		log.WithError(err).Warn("Failed to record quiz submission")
	}

	sess := svc.session(userID)
	tracker := svc.tracker(sess, content)

	if passed {
		tracker.Complete(stdContext.Background())
		svc.recomputeChapter(userID, sess, content.CourseID, content.ChapterID)
	}

	return &dto.SubmitQuizResponse{
		Score:            score,
		Passed:           passed,
		TotalPoints:      totalPoints,
		ContentCompleted: sess.store.IsContentCompleted(content.ID),
		ChapterCompleted: sess.store.IsChapterCompleted(content.ChapterID),
		ChapterPercent:   sess.store.ChapterPercentage(content.ChapterID),
	}, nil
}

// GetQuizHistory returns a learner's attempts for a quiz item, newest
// first.
func (svc *ProgressService) GetQuizHistory(userID, contentID string) ([]dto.QuizSubmissionResponse, error) {
	content, err := svc.sqlSvc.GetContent(contentID)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.StatusCode == 404 {
			return nil, shared.NewNotFoundError(nil, shared.MsgContentNotFound)
		}
		return nil, err
	}
	if content.ContentType != shared.ContentTypeQuiz {
		return nil, shared.NewBadRequestError(nil, "Content is not a quiz")
	}

	if err := svc.courseSvc.CheckCourseAccess(userID, content.CourseID); err != nil {
		return nil, err
	}

	subs, err := svc.sqlSvc.GetQuizSubmissions(userID, contentID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.QuizSubmissionResponse, len(subs))
	for i, sub := range subs {
		responses[i] = dto.QuizSubmissionResponse{
			ID:          sub.ID,
			ContentID:   sub.ContentID,
			Score:       sub.Score,
			Passed:      sub.Passed,
			SubmittedAt: sub.CreatedAt.Format(time.RFC3339),
		}
	}
	return responses, nil
}

// ==================== REPORTING ====================

func (svc *ProgressService) GetCourseProgress(userID, courseID string) (*dto.CourseProgressResponse, error) {
	if err := svc.courseSvc.CheckCourseAccess(userID, courseID); err != nil {
		return nil, err
	}

	structure, err := svc.courseSvc.GetCourseStructure(courseID)
	if err != nil {
		return nil, err
	}

	chapterRows, err := svc.sqlSvc.GetCourseChapterProgress(userID, courseID)
	if err != nil {
		return nil, err
	}
	contentRows, err := svc.sqlSvc.GetCourseContentProgress(userID, courseID)
	if err != nil {
		return nil, err
	}

	chapterFlags := make(map[string]*model.ChapterProgress, len(chapterRows))
	for i := range chapterRows {
		chapterFlags[chapterRows[i].ChapterID] = &chapterRows[i]
	}
	completedByChapter := make(map[string][]string)
	for _, row := range contentRows {
		if row.IsCompleted {
			completedByChapter[row.ChapterID] = append(completedByChapter[row.ChapterID], row.ContentID)
		}
	}

	response := &dto.CourseProgressResponse{CourseID: courseID}
	completedChapters := 0
	for _, chapter := range structure.Chapters {
		cr := dto.ChapterProgressResponse{
			ChapterID: chapter.ID,
			Completed: completedByChapter[chapter.ID],
		}
		if row, ok := chapterFlags[chapter.ID]; ok {
			cr.IsCompleted = row.IsCompleted
			cr.Percentage = row.Percentage
		}
		if cr.IsCompleted {
			completedChapters++
		}
		response.Chapters = append(response.Chapters, cr)
	}

	if n := len(structure.Chapters); n > 0 {
		response.Percentage = float64(completedChapters) / float64(n) * 100
		response.Completed = completedChapters == n
	}

	if response.Completed {
		if cert, err := svc.sqlSvc.GetCertificate(userID, courseID); err == nil {
			response.CertificateURL = cert.FileURL
		}
	}

	return response, nil
}

func (svc *ProgressService) GetCertificates(userID string) ([]dto.CertificateResponse, error) {
	certs, err := svc.sqlSvc.GetUserCertificates(userID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.CertificateResponse, len(certs))
	for i, cert := range certs {
		responses[i] = dto.CertificateResponse{
			ID:       cert.ID,
			CourseID: cert.CourseID,
			IssuedAt: cert.IssuedAt.Format(time.RFC3339),
			FileURL:  cert.FileURL,
		}
	}
	return responses, nil
}
