package admsrelay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memQueue struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*DeliveryAttempt
	seq      int
	base     time.Time

	enqueueErr   error
	dueErr       error
	succeededErr error
	incrementErr error
	deadErr      error
	countErr     error

	succeeded []uuid.UUID
	dead      []uuid.UUID
	counts    int
}

func newMemQueue() *memQueue {
	return &memQueue{
		attempts: make(map[uuid.UUID]*DeliveryAttempt),
		base:     time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local),
	}
}

func (q *memQueue) Enqueue(_ context.Context, attempt DeliveryAttempt) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return uuid.Nil, q.enqueueErr
	}
	if err := attempt.Validate(); err != nil {
		return uuid.Nil, err
	}
	q.seq++
	attempt.ID = uuid.New()
	attempt.CreatedAt = q.base.Add(time.Duration(q.seq) * time.Second)
	attempt.Status = StatusPending
	q.attempts[attempt.ID] = &attempt
	return attempt.ID, nil
}

func (q *memQueue) DueForRetry(_ context.Context, maxRetry, limit int) ([]DeliveryAttempt, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dueErr != nil {
		return nil, q.dueErr
	}
	var out []DeliveryAttempt
	for _, a := range q.attempts {
		if a.Status == StatusPending && a.RetryCount < maxRetry {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.succeededErr != nil {
		return q.succeededErr
	}
	if _, ok := q.attempts[id]; !ok {
		return ErrAttemptNotFound
	}
	delete(q.attempts, id)
	q.succeeded = append(q.succeeded, id)
	return nil
}

func (q *memQueue) IncrementRetry(_ context.Context, id uuid.UUID, maxRetry int, cause error) (RetryState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.incrementErr != nil {
		return RetryState{}, q.incrementErr
	}
	a, ok := q.attempts[id]
	if !ok {
		return RetryState{}, ErrAttemptNotFound
	}
	if a.Status == StatusPending && a.RetryCount < maxRetry {
		a.RetryCount++
		if cause != nil {
			a.LastError = cause.Error()
		}
		if a.RetryCount >= maxRetry {
			a.Status = StatusDead
		}
	}
	return RetryState{RetryCount: a.RetryCount, Status: a.Status}, nil
}

func (q *memQueue) MarkDead(_ context.Context, id uuid.UUID, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deadErr != nil {
		return q.deadErr
	}
	a, ok := q.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	a.Status = StatusDead
	a.LastError = cause.Error()
	q.dead = append(q.dead, id)
	return nil
}

func (q *memQueue) PendingCount(context.Context) (int, error) {
	return q.countStatus(StatusPending)
}

func (q *memQueue) DeadCount(context.Context) (int, error) {
	return q.countStatus(StatusDead)
}

func (q *memQueue) countStatus(status Status) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts++
	if q.countErr != nil {
		return 0, q.countErr
	}
	n := 0
	for _, a := range q.attempts {
		if a.Status == status {
			n++
		}
	}
	return n, nil
}

func (q *memQueue) all() []DeliveryAttempt {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeliveryAttempt, 0, len(q.attempts))
	for _, a := range q.attempts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// retryOnlyQueue hides the optional interfaces of memQueue.
type retryOnlyQueue struct {
	Queue
}

type scriptedSender struct {
	mu        sync.Mutex
	fail      map[string]error
	sent      []Delivery
	onSend    func(Delivery)
	sendCount map[string]int
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{fail: make(map[string]error), sendCount: make(map[string]int)}
}

func (s *scriptedSender) failWith(destination string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[destination] = err
}

func (s *scriptedSender) heal(destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fail, destination)
}

func (s *scriptedSender) Send(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, d)
	s.sendCount[d.Destination]++
	if s.onSend != nil {
		s.onSend(d)
	}
	return s.fail[d.Destination]
}

func (s *scriptedSender) deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.sent...)
}

type memCursor struct {
	mu       sync.Mutex
	value    time.Time
	writes   []time.Time
	writeErr error
}

func (c *memCursor) Read(context.Context) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *memCursor) Write(_ context.Context, cursor time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.value = cursor
	c.writes = append(c.writes, cursor)
	return nil
}

// logSource serves events from the second after the cursor, oldest first.
type logSource struct {
	mu     sync.Mutex
	events []FingerprintEvent
	err    error
	calls  int
	afters []time.Time
}

func (s *logSource) Fetch(_ context.Context, after time.Time, limit int) ([]FingerprintEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.afters = append(s.afters, after)
	if s.err != nil {
		return nil, s.err
	}
	var out []FingerprintEvent
	for _, ev := range s.events {
		if !ev.CursorTime().Before(NextSecond(after)) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CursorTime().Before(out[j].CursorTime()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return n.err
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type countingMetrics struct {
	NopMetrics
	mu          sync.Mutex
	fetched     int
	delivered   int
	queued      int
	retries     int
	dead        int
	errors      map[string]int
	pending     int
	deadLetters int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) AddFetched(n int)   { m.mu.Lock(); m.fetched += n; m.mu.Unlock() }
func (m *countingMetrics) AddDelivered(n int) { m.mu.Lock(); m.delivered += n; m.mu.Unlock() }
func (m *countingMetrics) AddQueued(n int)    { m.mu.Lock(); m.queued += n; m.mu.Unlock() }
func (m *countingMetrics) AddRetries(n int)   { m.mu.Lock(); m.retries += n; m.mu.Unlock() }
func (m *countingMetrics) AddDead(n int)      { m.mu.Lock(); m.dead += n; m.mu.Unlock() }
func (m *countingMetrics) SetPending(n int)   { m.mu.Lock(); m.pending = n; m.mu.Unlock() }
func (m *countingMetrics) SetDeadLetters(n int) {
	m.mu.Lock()
	m.deadLetters = n
	m.mu.Unlock()
}
func (m *countingMetrics) AddErrors(kind string, n int) {
	m.mu.Lock()
	m.errors[kind] += n
	m.mu.Unlock()
}

var errBoom = errors.New("boom")

func at(sec int) time.Time {
	return time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local).Add(time.Duration(sec) * time.Second)
}

func event(key int64, sec int) FingerprintEvent {
	return FingerprintEvent{
		Key:            key,
		PIN:            "1234500001",
		LoggedAt:       at(sec),
		ServerLoggedAt: at(sec),
		Verification:   1,
		WorkCode:       "0",
	}
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
