package services

import (
	stdContext "context"
	"encoding/json"
	"sync"

	"github.com/alphabatem/common/context"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ChangeEvent is the row-change notification fanned out over Redis
// pub/sub whenever course structure or progress rows change.
type ChangeEvent struct {
	Table     string `json:"table"` // courses, chapters, chapter_contents, course_progress, assignments
	CourseID  string `json:"course_id"`
	ChapterID string `json:"chapter_id,omitempty"`
}

const courseChannelPrefix = "course_changes:"

func CourseChannel(courseID string) string {
	return courseChannelPrefix + courseID
}

// InvalidationKeys maps a change event onto the query-cache entries that
// must be dropped: the course detail, the course structure, the chapter
// (when the payload resolves one) and the aggregate course lists.
func InvalidationKeys(ev ChangeEvent) (keys []string, prefixes []string) {
	if ev.CourseID == "" {
		return nil, nil
	}

	keys = append(keys, "course:"+ev.CourseID, "course:"+ev.CourseID+":chapters")
	if ev.ChapterID != "" {
		keys = append(keys, "chapter:"+ev.ChapterID)
	}
	prefixes = append(prefixes, "courses:")
	return keys, prefixes
}

// RealtimeService bridges Redis change notifications to query-cache
// invalidation. One logical subscription per course, refcounted, so the
// UI always refetches ground truth after someone edits a course or a
// progress row lands from another session.
type RealtimeService struct {
	context.DefaultService

	redisSvc  *RedisService
	courseSvc *CourseService

	mu   sync.Mutex
	subs map[string]*courseSub

	ctx    stdContext.Context
	cancel stdContext.CancelFunc
}

type courseSub struct {
	courseID string
	pubsub   *redis.PubSub
	refs     int
	done     chan struct{}
}

// Subscription is a scoped handle on a course channel; Release is
// idempotent and must be called when the watcher goes away.
type Subscription struct {
	svc      *RealtimeService
	courseID string
	once     sync.Once
}

func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.svc.release(s.courseID)
	})
}

const REALTIME_SVC = "realtime_svc"

func (svc RealtimeService) Id() string {
	return REALTIME_SVC
}

func (svc *RealtimeService) Configure(ctx *context.Context) error {
	svc.subs = make(map[string]*courseSub)
	svc.ctx, svc.cancel = stdContext.WithCancel(stdContext.Background())
	return svc.DefaultService.Configure(ctx)
}

func (svc *RealtimeService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.courseSvc = svc.Service(COURSE_SVC).(*CourseService)
	return nil
}

func (svc *RealtimeService) Shutdown() {
	svc.cancel()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for courseID, sub := range svc.subs {
		if sub.pubsub != nil {
			_ = sub.pubsub.Close()
		}
		delete(svc.subs, courseID)
	}
}

// PublishChange notifies every listener of the course's channel.
func (svc *RealtimeService) PublishChange(ctx stdContext.Context, ev ChangeEvent) error {
	if ev.CourseID == "" {
		return nil
	}
	return svc.redisSvc.Publish(ctx, CourseChannel(ev.CourseID), ev)
}

// SubscribeCourse establishes (or joins) the logical channel for a
// course. An empty course id is a no-op, not an error. The returned
// handle must be released.
func (svc *RealtimeService) SubscribeCourse(courseID string) *Subscription {
	if courseID == "" {
		return nil
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if sub, ok := svc.subs[courseID]; ok {
		sub.refs++
		return &Subscription{svc: svc, courseID: courseID}
	}

	pubsub := svc.redisSvc.Subscribe(svc.ctx, CourseChannel(courseID))
	if pubsub == nil {
		// Realtime is an enhancement; without Redis the page still polls.
		log.WithField("course_id", courseID).Warn("Realtime channel unavailable")
		return nil
	}

	sub := &courseSub{
		courseID: courseID,
		pubsub:   pubsub,
		refs:     1,
		done:     make(chan struct{}),
	}
	svc.subs[courseID] = sub

	go svc.listen(sub)

	return &Subscription{svc: svc, courseID: courseID}
}

// EnsureCourse keeps a service-owned subscription alive for the course,
// so cache invalidation flows even when no explicit watcher holds a
// handle. Idempotent; released in bulk on shutdown.
func (svc *RealtimeService) EnsureCourse(courseID string) {
	if courseID == "" {
		return
	}

	svc.mu.Lock()
	_, ok := svc.subs[courseID]
	svc.mu.Unlock()
	if ok {
		return
	}

	// The handle is deliberately dropped: the refcount it holds belongs
	// to the service and is torn down in Shutdown.
	svc.SubscribeCourse(courseID)
}

func (svc *RealtimeService) release(courseID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	sub, ok := svc.subs[courseID]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}

	delete(svc.subs, courseID)
	if sub.pubsub != nil {
		_ = sub.pubsub.Close()
	}
}

func (svc *RealtimeService) listen(sub *courseSub) {
	defer close(sub.done)

	ch := sub.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			svc.handleMessage(sub.courseID, msg.Payload)
		case <-svc.ctx.Done():
			return
		}
	}
}

func (svc *RealtimeService) handleMessage(courseID, payload string) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.WithError(err).WithField("course_id", courseID).Warn("Dropping malformed change notification")
		return
	}
	if ev.CourseID == "" {
		ev.CourseID = courseID
	}

	keys, prefixes := InvalidationKeys(ev)
	cache := svc.courseSvc.Cache()
	if len(keys) > 0 {
		cache.Invalidate(keys...)
	}
	for _, prefix := range prefixes {
		cache.InvalidatePrefix(prefix)
	}
	recordCacheInvalidation()

	log.WithFields(log.Fields{
		"table":     ev.Table,
		"course_id": ev.CourseID,
	}).Debug("Invalidated cached queries after change notification")
}
