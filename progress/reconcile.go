package progress

// Direction says which side of a divergence holds the newer truth.
type Direction int

const (
	// ServerAhead: the server reports complete but the local store does not.
	// The local store is synced up; no write is needed.
	ServerAhead Direction = iota
	// LocalAhead: the local store reports complete but the server does not.
	// The completion must be persisted with an idempotent upsert.
	LocalAhead
)

func (d Direction) String() string {
	if d == ServerAhead {
		return "server_ahead"
	}
	return "local_ahead"
}

// Confirmed is a completion flag the server has persisted.
type Confirmed struct {
	ContentID string
	Completed bool
}

// Optimistic is a completion flag only the local store knows about.
type Optimistic struct {
	ContentID string
	Completed bool
}

type Divergence struct {
	ContentID string
	Direction Direction
}

// Result of one reconciliation pass over a chapter's content set.
type Result struct {
	// Merged is the per-content completion after applying server-wins on
	// the server-ahead side and keeping optimistic completions that the
	// server has not confirmed yet.
	Merged map[string]bool
	// Divergences lists every mismatch between the two sources.
	Divergences []Divergence
	// ChapterComplete is true iff every content id in the chapter is
	// complete in Merged. Optimistic completions count, so the aggregate
	// flips as soon as the last item is locally complete.
	ChapterComplete bool
	// Percentage of the chapter's contents complete in Merged, 0-100.
	Percentage float64
}

// ReconcileChapter merges the server-confirmed flags with the optimistic
// local flags for one chapter. contentIDs is the chapter's full content
// set; ids missing from either map count as not complete on that side.
//
// A local completion is never rolled back here: a local-true flag with a
// server-false flag stays complete in the merge and is reported as a
// LocalAhead divergence for the caller to persist.
func ReconcileChapter(contentIDs []string, local map[string]bool, remote map[string]bool) Result {
	res := Result{
		Merged: make(map[string]bool, len(contentIDs)),
	}

	if len(contentIDs) == 0 {
		return res
	}

	completed := 0
	for _, id := range contentIDs {
		l := local[id]
		r := remote[id]

		merged := l || r
		res.Merged[id] = merged
		if merged {
			completed++
		}

		switch {
		case r && !l:
			res.Divergences = append(res.Divergences, Divergence{ContentID: id, Direction: ServerAhead})
		case l && !r:
			res.Divergences = append(res.Divergences, Divergence{ContentID: id, Direction: LocalAhead})
		}
	}

	res.ChapterComplete = completed == len(contentIDs)
	res.Percentage = float64(completed) / float64(len(contentIDs)) * 100
	return res
}

// Apply writes a reconciliation result back into the store: server-ahead
// items are synced up and the chapter aggregate is refreshed. Local-ahead
// items are left to the caller, which owns the network write.
func (res Result) Apply(store *Store, chapterID, courseID string) {
	for _, d := range res.Divergences {
		if d.Direction == ServerAhead {
			store.SetContentCompleted(d.ContentID, chapterID, courseID, true)
		}
	}
	store.SetChapterCompleted(chapterID, courseID, res.ChapterComplete, res.Percentage)
}
