// Package queue drains pending audio segments through the transcription
// collaborator.
//
// The queue is materialized from segment status in the store rather than a
// separate persisted queue file: there is no second source of truth, at the
// cost of a rescan when the worker restarts. Concurrency is intentionally 1;
// the transcription collaborator is treated as a shared, memory-constrained
// resource.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicevault/internal/contextutil"
	"voicevault/internal/store"
	"voicevault/internal/transcribe"
)

const defaultPollInterval = time.Second

// Options configure the queue worker.
type Options struct {
	// Timeout bounds each transcription call. An expired call counts as a
	// failure; it is never left dangling.
	Timeout time.Duration
	// MaxRetries is the number of failed attempts after which a segment is
	// marked FAILED terminally.
	MaxRetries int
	// BackoffBase is the first retry delay; each subsequent retry doubles it.
	BackoffBase time.Duration
}

type itemKey struct {
	sessionID string
	seq       int
}

type workItem struct {
	key      itemKey
	filename string
	enqueued time.Time
}

// Queue is the single-concurrency transcription worker.
type Queue struct {
	store       *store.Store
	transcriber transcribe.Transcriber
	opts        Options

	mu          sync.Mutex
	subscribers []Subscriber
	cancelled   map[itemKey]bool
	nextAttempt map[itemKey]time.Time
	inFlight    *itemKey
	announced   map[string]bool

	wake chan struct{}
}

// New creates a queue over the given store and transcriber.
func New(st *store.Store, tr transcribe.Transcriber, opts Options) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 30 * time.Second
	}
	return &Queue{
		store:       st,
		transcriber: tr,
		opts:        opts,
		cancelled:   make(map[itemKey]bool),
		nextAttempt: make(map[itemKey]time.Time),
		announced:   make(map[string]bool),
		wake:        make(chan struct{}, 1),
	}
}

// Subscribe registers a handler for queue events.
func (q *Queue) Subscribe(fn Subscriber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribers = append(q.subscribers, fn)
}

func (q *Queue) emit(e Event) {
	e.At = time.Now().UTC()
	q.mu.Lock()
	subs := make([]Subscriber, len(q.subscribers))
	copy(subs, q.subscribers)
	q.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// Enqueue announces that a session's pending segments are now visible to the
// worker and nudges it. The segments themselves were already persisted as
// PENDING, so the announcement carries no state of its own.
func (q *Queue) Enqueue(ctx context.Context, sessionID string) {
	sess, err := q.store.Load(sessionID)
	if err == nil {
		for _, seg := range sess.Segments {
			if seg.Status == store.SegmentPending {
				q.emit(Event{Type: EventQueued, SessionID: sessionID, Seq: seg.Seq})
			}
		}
	}
	q.Notify()
}

// Notify nudges the worker to rescan without blocking.
func (q *Queue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// CancelPending removes a queued-but-not-started segment from future work.
// It reports false when the item is already in flight or unknown; in-flight
// items are allowed to complete or fail naturally.
func (q *Queue) CancelPending(sessionID string, seq int) bool {
	key := itemKey{sessionID: sessionID, seq: seq}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight != nil && *q.inFlight == key {
		return false
	}
	q.cancelled[key] = true
	return true
}

// Run executes the worker loop until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "transcription queue started",
		"timeout", q.opts.Timeout,
		"max_retries", q.opts.MaxRetries,
	)

	for {
		item, wait := q.nextItem(ctx)
		if item == nil {
			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "transcription queue stopped")
				return
			case <-q.wake:
			case <-time.After(wait):
			}
			continue
		}

		q.process(ctx, item)

		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "transcription queue stopped")
			return
		default:
		}
	}
}

// RunToIdle processes work until nothing is eligible now or becomes eligible
// while draining. Used by tests and the CLI drain path.
func (q *Queue) RunToIdle(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, wait := q.nextItem(ctx)
		if item == nil {
			if wait >= defaultPollInterval {
				return nil
			}
			// A retry is due shortly; wait it out so drains are deterministic.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		q.process(ctx, item)
	}
}

// nextItem scans the store for the next eligible segment. Within a session the
// lowest pending sequence goes first; across sessions, FIFO by finalization
// time. When nothing is due it returns the wait until the earliest retry, or
// the poll interval. The scan also announces TRANSCRIBING sessions that hold
// no workable segments at all, so sessions finalized with every segment
// already terminal (reopen without new audio, restart after drain) still
// reach SESSION_DONE.
func (q *Queue) nextItem(ctx context.Context) (*workItem, time.Duration) {
	sessions, err := q.store.List(ctx)
	if err != nil && len(sessions) == 0 {
		return nil, defaultPollInterval
	}

	now := time.Now()
	wait := defaultPollInterval
	var best *workItem
	var drained []*store.Session

	q.mu.Lock()

	for _, sess := range sessions {
		if sess.State != store.StateTranscribing {
			delete(q.announced, sess.ID)
			continue
		}
		enqueued := sess.CreatedAt
		if sess.FinalizedAt != nil {
			enqueued = *sess.FinalizedAt
		}

		// Strictly increasing sequence order within a session: only the lowest
		// workable pending segment is a candidate. Cancelled segments are
		// skipped over, not processed.
		workable := false
		for _, seg := range sess.Segments {
			if seg.Status != store.SegmentPending {
				continue
			}
			key := itemKey{sessionID: sess.ID, seq: seg.Seq}
			if q.cancelled[key] {
				continue
			}
			workable = true
			if due, ok := q.nextAttempt[key]; ok && due.After(now) {
				if d := time.Until(due); d < wait {
					wait = d
				}
				break
			}
			item := &workItem{key: key, filename: seg.Filename, enqueued: enqueued}
			if best == nil || item.enqueued.Before(best.enqueued) ||
				(item.enqueued.Equal(best.enqueued) && item.key.sessionID < best.key.sessionID) {
				best = item
			}
			break
		}

		if workable {
			delete(q.announced, sess.ID)
		} else if len(sess.Segments) > 0 && !q.announced[sess.ID] {
			q.announced[sess.ID] = true
			drained = append(drained, sess)
		}
	}

	if best != nil {
		q.inFlight = &best.key
	}
	q.mu.Unlock()

	for _, sess := range drained {
		q.announceDone(sess)
	}

	if best != nil {
		return best, 0
	}
	return nil, wait
}

// announceDone emits SESSION_DONE for a session the worker has nothing left
// to do for. Cancelled segments stay PENDING and are counted as not done.
func (q *Queue) announceDone(sess *store.Session) {
	done, succeeded := 0, 0
	for _, seg := range sess.Segments {
		switch seg.Status {
		case store.SegmentSuccess:
			done++
			succeeded++
		case store.SegmentFailed:
			done++
		}
	}
	q.emit(Event{Type: EventSessionDone, SessionID: sess.ID, Done: done, Total: len(sess.Segments), Succeeded: succeeded})
}

func (q *Queue) process(ctx context.Context, item *workItem) {
	logger := contextutil.LoggerFromContext(ctx)
	defer func() {
		q.mu.Lock()
		q.inFlight = nil
		q.mu.Unlock()
	}()

	sessionID, seq := item.key.sessionID, item.key.seq
	q.emit(Event{Type: EventStarted, SessionID: sessionID, Seq: seq})

	audioPath := q.store.AudioPath(sessionID, item.filename)
	callCtx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	res, err := q.transcriber.Transcribe(callCtx, audioPath)
	cancel()

	if err != nil {
		q.handleFailure(ctx, item, err)
		return
	}

	transcriptName := fmt.Sprintf("segment_%04d.txt", seq)
	if err := store.WriteFileAtomic(q.store.TranscriptPath(sessionID, transcriptName), []byte(res.Text)); err != nil {
		q.handleFailure(ctx, item, err)
		return
	}

	updated, err := q.store.Update(sessionID, func(sess *store.Session) error {
		seg := sess.Segment(seq)
		if seg == nil {
			return fmt.Errorf("segment %d not found in session %s", seq, sessionID)
		}
		seg.Status = store.SegmentSuccess
		seg.Transcript = transcriptName
		seg.LastError = ""
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record transcription success",
			"session_id", sessionID, "seq", seq, "error", err)
		return
	}

	q.mu.Lock()
	delete(q.nextAttempt, item.key)
	q.mu.Unlock()

	logger.InfoContext(ctx, "segment transcribed", "session_id", sessionID, "seq", seq)
	q.emit(Event{Type: EventCompleted, SessionID: sessionID, Seq: seq})
	q.emitProgress(updated)
}

// handleFailure increments the retry count, scheduling a backoff or marking
// the segment FAILED terminally. The audio file is never deleted or moved.
func (q *Queue) handleFailure(ctx context.Context, item *workItem, cause error) {
	logger := contextutil.LoggerFromContext(ctx)
	sessionID, seq := item.key.sessionID, item.key.seq

	terminal := false
	updated, err := q.store.Update(sessionID, func(sess *store.Session) error {
		seg := sess.Segment(seq)
		if seg == nil {
			return fmt.Errorf("segment %d not found in session %s", seq, sessionID)
		}
		seg.Retries++
		seg.LastError = cause.Error()
		if seg.Retries >= q.opts.MaxRetries {
			seg.Status = store.SegmentFailed
			terminal = true
			sess.LogError(time.Now().UTC(), fmt.Sprintf("segment %d failed after %d attempts: %v", seq, seg.Retries, cause))
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record transcription failure",
			"session_id", sessionID, "seq", seq, "error", err)
		return
	}

	if terminal {
		q.mu.Lock()
		delete(q.nextAttempt, item.key)
		q.mu.Unlock()

		logger.WarnContext(ctx, "segment failed terminally",
			"session_id", sessionID, "seq", seq, "error", cause)
		q.emit(Event{Type: EventFailed, SessionID: sessionID, Seq: seq, Terminal: true, Err: cause.Error()})
		q.emitProgress(updated)
		return
	}

	retries := 0
	if seg := updated.Segment(seq); seg != nil {
		retries = seg.Retries
	}
	delay := q.opts.BackoffBase << (retries - 1) // 30s, 60s, 120s, ...

	q.mu.Lock()
	q.nextAttempt[item.key] = time.Now().Add(delay)
	q.mu.Unlock()

	logger.WarnContext(ctx, "segment transcription failed, will retry",
		"session_id", sessionID, "seq", seq, "retries", retries, "backoff", delay, "error", cause)
	q.emit(Event{Type: EventFailed, SessionID: sessionID, Seq: seq, Err: cause.Error()})
}

// emitProgress emits PROGRESS after each terminal segment and SESSION_DONE
// once every segment is terminal.
func (q *Queue) emitProgress(sess *store.Session) {
	done, succeeded := 0, 0
	for _, seg := range sess.Segments {
		switch seg.Status {
		case store.SegmentSuccess:
			done++
			succeeded++
		case store.SegmentFailed:
			done++
		}
	}
	total := len(sess.Segments)
	q.emit(Event{Type: EventProgress, SessionID: sess.ID, Done: done, Total: total, Succeeded: succeeded})
	if done == total && total > 0 {
		q.mu.Lock()
		already := q.announced[sess.ID]
		q.announced[sess.ID] = true
		q.mu.Unlock()
		if !already {
			q.emit(Event{Type: EventSessionDone, SessionID: sess.ID, Done: done, Total: total, Succeeded: succeeded})
		}
	}
}

// Pending returns the number of segments currently visible to the worker.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	sessions, err := q.store.List(ctx)
	if err != nil && len(sessions) == 0 {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if sess.State != store.StateTranscribing {
			continue
		}
		for _, seg := range sess.Segments {
			if seg.Status == store.SegmentPending {
				n++
			}
		}
	}
	return n, nil
}
