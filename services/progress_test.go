package services

import (
	stdContext "context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/shared"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// fakeProgressDB is an in-memory progressPersistence that counts writes,
// which is what the protocol properties are stated in terms of.
type fakeProgressDB struct {
	mu sync.Mutex

	contents map[string]*model.ContentItem

	contentRows map[string]*model.ContentProgress // userID|contentID
	chapterRows map[string]*model.ChapterProgress // userID|chapterID

	completedContentWrites map[string]int // per content id, IsCompleted writes
	chapterCompleteWrites  map[string]int // per chapter id, IsCompleted writes

	failCompletedWrites int // fail this many completed content writes first

	certs []model.Certificate
	subs  []model.QuizSubmission
}

func newFakeProgressDB(contents ...*model.ContentItem) *fakeProgressDB {
	db := &fakeProgressDB{
		contents:               make(map[string]*model.ContentItem),
		contentRows:            make(map[string]*model.ContentProgress),
		chapterRows:            make(map[string]*model.ChapterProgress),
		completedContentWrites: make(map[string]int),
		chapterCompleteWrites:  make(map[string]int),
	}
	for _, c := range contents {
		db.contents[c.ID] = c
	}
	return db
}

func (db *fakeProgressDB) GetContent(id string) (*model.ContentItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if c, ok := db.contents[id]; ok {
		return c, nil
	}
	return nil, shared.NewNotFoundError(nil, shared.MsgContentNotFound)
}

func (db *fakeProgressDB) GetContentProgress(userID, contentID string) (*model.ContentProgress, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if row, ok := db.contentRows[userID+"|"+contentID]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, shared.NewNotFoundError(nil, "progress not found")
}

func (db *fakeProgressDB) UpsertContentProgress(row *model.ContentProgress) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if row.IsCompleted {
		if db.failCompletedWrites > 0 {
			db.failCompletedWrites--
			return shared.NewInternalError(nil, "write failed")
		}
		db.completedContentWrites[row.ContentID]++
	}

	key := row.UserID + "|" + row.ContentID
	existing, ok := db.contentRows[key]
	if !ok {
		copied := *row
		db.contentRows[key] = &copied
		return nil
	}
	// Completion never rolls back; positions track the latest write.
	existing.IsCompleted = existing.IsCompleted || row.IsCompleted
	if row.LastPosition > 0 {
		existing.LastPosition = row.LastPosition
	}
	return nil
}

func (db *fakeProgressDB) GetChapterContentProgress(userID, chapterID string) ([]model.ContentProgress, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var rows []model.ContentProgress
	for _, row := range db.contentRows {
		if row.UserID == userID && row.ChapterID == chapterID {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (db *fakeProgressDB) UpsertChapterProgress(row *model.ChapterProgress) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if row.IsCompleted {
		db.chapterCompleteWrites[row.ChapterID]++
	}
	key := row.UserID + "|" + row.ChapterID
	existing, ok := db.chapterRows[key]
	if !ok {
		copied := *row
		db.chapterRows[key] = &copied
		return nil
	}
	existing.IsCompleted = existing.IsCompleted || row.IsCompleted
	existing.Percentage = row.Percentage
	return nil
}

func (db *fakeProgressDB) GetCourseContentProgress(userID, courseID string) ([]model.ContentProgress, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var rows []model.ContentProgress
	for _, row := range db.contentRows {
		if row.UserID == userID && row.CourseID == courseID {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (db *fakeProgressDB) GetCourseChapterProgress(userID, courseID string) ([]model.ChapterProgress, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var rows []model.ChapterProgress
	for _, row := range db.chapterRows {
		if row.UserID == userID && row.CourseID == courseID {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (db *fakeProgressDB) CreateQuizSubmission(sub *model.QuizSubmission) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.subs = append(db.subs, *sub)
	return nil
}

func (db *fakeProgressDB) GetQuizSubmissions(userID, contentID string) ([]model.QuizSubmission, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.QuizSubmission
	for _, sub := range db.subs {
		if sub.UserID == userID && sub.ContentID == contentID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (db *fakeProgressDB) CreateCertificate(cert *model.Certificate) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.certs {
		if existing.UserID == cert.UserID && existing.CourseID == cert.CourseID {
			return nil
		}
	}
	db.certs = append(db.certs, *cert)
	return nil
}

func (db *fakeProgressDB) GetCertificate(userID, courseID string) (*model.Certificate, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.certs {
		if db.certs[i].UserID == userID && db.certs[i].CourseID == courseID {
			return &db.certs[i], nil
		}
	}
	return nil, shared.NewNotFoundError(nil, "certificate not found")
}

func (db *fakeProgressDB) GetUserCertificates(userID string) ([]model.Certificate, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.Certificate
	for _, cert := range db.certs {
		if cert.UserID == userID {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (db *fakeProgressDB) completedWrites(contentID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.completedContentWrites[contentID]
}

func (db *fakeProgressDB) chapterWrites(chapterID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.chapterCompleteWrites[chapterID]
}

func (db *fakeProgressDB) contentCompleted(userID, contentID string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	row, ok := db.contentRows[userID+"|"+contentID]
	return ok && row.IsCompleted
}

func (db *fakeProgressDB) certificateCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.certs)
}

type fakeCatalog struct {
	structure *CourseStructure
}

func (f *fakeCatalog) CheckCourseAccess(userID, courseID string) error { return nil }

func (f *fakeCatalog) GetCourseStructure(courseID string) (*CourseStructure, error) {
	return f.structure, nil
}

func (f *fakeCatalog) ValidateQuizAnswers(content *model.ContentItem, userAnswers map[string]interface{}) (int, int, bool, error) {
	return 100, 10, true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (f *fakePublisher) PublishChange(ctx stdContext.Context, ev ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) published() []ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChangeEvent(nil), f.events...)
}

func newTestProgressService(db *fakeProgressDB, structure *CourseStructure) (*ProgressService, *fakePublisher) {
	pub := &fakePublisher{}
	svc := &ProgressService{
		sqlSvc:      db,
		courseSvc:   &fakeCatalog{structure: structure},
		realtimeSvc: pub,
		sessions:    make(map[string]*learnerSession),
		sessionTTL:  time.Minute,
		dwell:       30 * time.Millisecond,
		debounce:    5 * time.Millisecond,
	}
	return svc, pub
}

func textContent(id, chapterID, courseID string) *model.ContentItem {
	return &model.ContentItem{
		ID:          id,
		ChapterID:   chapterID,
		CourseID:    courseID,
		ContentType: shared.ContentTypeText,
	}
}

func structureOf(courseID string, contentsByChapter map[string][]model.ContentItem) *CourseStructure {
	structure := &CourseStructure{Contents: contentsByChapter}
	for chapterID := range contentsByChapter {
		structure.Chapters = append(structure.Chapters, model.Chapter{ID: chapterID, CourseID: courseID})
	}
	return structure
}

func TestProgressService_MarkCompleteWritesRowExactlyOnce(t *testing.T) {
	c1 := textContent("c1", "ch1", "course1")
	c2 := textContent("c2", "ch1", "course1")
	db := newFakeProgressDB(c1, c2)
	svc, _ := newTestProgressService(db, structureOf("course1", map[string][]model.ContentItem{
		"ch1": {*c1, *c2},
	}))

	resp, err := svc.HandleEvent("learner", dto.ProgressEventRequest{ContentID: "c1", Event: "mark_complete"})
	require.NoError(t, err)
	assert.True(t, resp.ContentCompleted)
	assert.False(t, resp.ChapterCompleted)

	// The debounced confirmation is the only write for a fresh
	// completion; the reconciliation pass must not add a second one.
	waitFor(t, func() bool { return db.contentCompleted("learner", "c1") })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, db.completedWrites("c1"))
}

func TestProgressService_TextDwellCompletesChapterEndToEnd(t *testing.T) {
	c1 := textContent("c1", "ch1", "course1")
	db := newFakeProgressDB(c1)
	svc, pub := newTestProgressService(db, structureOf("course1", map[string][]model.ContentItem{
		"ch1": {*c1},
	}))

	resp, err := svc.HandleEvent("learner", dto.ProgressEventRequest{ContentID: "c1", Event: "viewed"})
	require.NoError(t, err)
	assert.False(t, resp.ContentCompleted)

	// Dwell elapses, the item completes, the chapter aggregate flips and
	// the chapter row is upserted once.
	waitFor(t, func() bool { return db.chapterWrites("ch1") == 1 })
	waitFor(t, func() bool { return db.contentCompleted("learner", "c1") })
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, db.completedWrites("c1"))
	assert.Equal(t, 1, db.chapterWrites("ch1"))

	events := pub.published()
	require.NotEmpty(t, events)
	assert.Equal(t, "course_progress", events[0].Table)
	assert.Equal(t, "course1", events[0].CourseID)

	// Single-chapter course: completing the chapter finishes the course.
	assert.Equal(t, 1, db.certificateCount())
}

func TestProgressService_FailedConfirmRetriedOnNextPass(t *testing.T) {
	c1 := textContent("c1", "ch1", "course1")
	c2 := textContent("c2", "ch1", "course1")
	db := newFakeProgressDB(c1, c2)
	db.failCompletedWrites = 1
	svc, _ := newTestProgressService(db, structureOf("course1", map[string][]model.ContentItem{
		"ch1": {*c1, *c2},
	}))

	_, err := svc.HandleEvent("learner", dto.ProgressEventRequest{ContentID: "c1", Event: "mark_complete"})
	require.NoError(t, err)

	// The debounced write fails; local state stays complete.
	waitFor(t, func() bool { return db.completedWrites("c1") == 0 && !svc.session("learner").confirmInFlight("c1") })
	assert.True(t, svc.session("learner").store.IsContentCompleted("c1"))
	assert.False(t, db.contentCompleted("learner", "c1"))

	// The next reconciliation pass picks the stale flag up and pushes it.
	_, err = svc.HandleEvent("learner", dto.ProgressEventRequest{ContentID: "c1", Event: "mark_complete"})
	require.NoError(t, err)
	waitFor(t, func() bool { return db.contentCompleted("learner", "c1") })
}

func TestProgressService_AlreadyConfirmedShortCircuits(t *testing.T) {
	c1 := textContent("c1", "ch1", "course1")
	db := newFakeProgressDB(c1)
	db.contentRows["learner|c1"] = &model.ContentProgress{
		UserID: "learner", ContentID: "c1", ChapterID: "ch1", CourseID: "course1",
		IsCompleted: true,
	}
	svc, _ := newTestProgressService(db, structureOf("course1", map[string][]model.ContentItem{
		"ch1": {*c1},
	}))

	resp, err := svc.HandleEvent("learner", dto.ProgressEventRequest{ContentID: "c1", Event: "mark_complete"})
	require.NoError(t, err)
	assert.True(t, resp.ContentCompleted)

	time.Sleep(50 * time.Millisecond)
	// No fresh completion write for a row the server already confirmed.
	assert.Equal(t, 0, db.completedWrites("c1"))
}

func TestProgressService_GetQuizHistory(t *testing.T) {
	quiz := &model.ContentItem{
		ID: "q1", ChapterID: "ch1", CourseID: "course1",
		ContentType: shared.ContentTypeQuiz,
	}
	db := newFakeProgressDB(quiz, textContent("c1", "ch1", "course1"))
	db.subs = []model.QuizSubmission{
		{ID: "s1", UserID: "learner", ContentID: "q1", Score: 80, Passed: true},
		{ID: "s2", UserID: "other", ContentID: "q1", Score: 40},
	}
	svc, _ := newTestProgressService(db, structureOf("course1", map[string][]model.ContentItem{
		"ch1": {*quiz},
	}))

	history, err := svc.GetQuizHistory("learner", "q1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "s1", history[0].ID)
	assert.Equal(t, 80, history[0].Score)
	assert.True(t, history[0].Passed)

	_, err = svc.GetQuizHistory("learner", "c1")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode)
}
