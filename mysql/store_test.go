package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/velmie/admsrelay"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeExecutor struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{}, nil
}

type fixedGenerator struct {
	id    uuid.UUID
	calls int
}

func (g *fixedGenerator) New() (uuid.UUID, error) {
	g.calls++
	return g.id, nil
}

func newTestStore(gen *fixedGenerator, now time.Time) *Store {
	return &Store{
		cfg: Config{
			Generator: gen.New,
			Clock:     admsrelay.ClockFunc(func() time.Time { return now }),
		}.withDefaults(),
		queries: newQueries("logs"),
		table:   "logs",
	}
}

func testAttempt() admsrelay.DeliveryAttempt {
	return admsrelay.DeliveryAttempt{
		Payload:     []byte(`{"key":1,"pin":"1","status":0,"verifikasi":1,"waktu":"2024-01-02 10:00:00","workcode":0}`),
		Signature:   "abc123",
		Destination: "https://example.test/hook",
	}
}

func TestStoreInsertGeneratesID(t *testing.T) {
	gen := &fixedGenerator{id: uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")}
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local)
	store := newTestStore(gen, now)
	exec := &fakeExecutor{}

	id, err := store.Insert(context.Background(), exec, testAttempt())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != gen.id {
		t.Fatalf("expected generated id to be returned")
	}
	if gen.calls != 1 {
		t.Fatalf("expected generator to be called once")
	}
	if !strings.HasPrefix(exec.query, "INSERT INTO logs") {
		t.Fatalf("unexpected query: %s", exec.query)
	}
	if len(exec.args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(exec.args))
	}
	if exec.args[0] != gen.id.String() {
		t.Fatalf("expected id arg %s, got %v", gen.id, exec.args[0])
	}
	if string(exec.args[1].([]byte)) != string(testAttempt().Payload) {
		t.Fatalf("payload must be stored verbatim")
	}
	if got := exec.args[4].(time.Time); !got.Equal(now) {
		t.Fatalf("expected timestamp %s, got %s", now, got)
	}
	if exec.args[5] != admsrelay.StatusPending {
		t.Fatalf("expected pending status, got %v", exec.args[5])
	}
}

func TestStoreInsertKeepsProvidedID(t *testing.T) {
	gen := &fixedGenerator{id: uuid.New()}
	store := newTestStore(gen, time.Now())
	attempt := testAttempt()
	attempt.ID = uuid.New()

	id, err := store.Insert(context.Background(), &fakeExecutor{}, attempt)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != attempt.ID {
		t.Fatalf("expected provided id")
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called")
	}
}

func TestStoreInsertValidates(t *testing.T) {
	store := newTestStore(&fixedGenerator{}, time.Now())

	attempt := testAttempt()
	attempt.Signature = ""
	if _, err := store.Insert(context.Background(), &fakeExecutor{}, attempt); !errors.Is(err, admsrelay.ErrSignatureRequired) {
		t.Fatalf("expected ErrSignatureRequired, got %v", err)
	}
	if _, err := store.Insert(context.Background(), nil, testAttempt()); !errors.Is(err, ErrExecutorRequired) {
		t.Fatalf("expected ErrExecutorRequired, got %v", err)
	}
}

func TestStoreInsertWrapsExecError(t *testing.T) {
	store := newTestStore(&fixedGenerator{id: uuid.New()}, time.Now())
	boom := errors.New("boom")

	_, err := store.Insert(context.Background(), &fakeExecutor{err: boom}, testAttempt())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped exec error, got %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithTable("logs; DROP")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
	store, err := NewStore(&sql.DB{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.table != defaultTable {
		t.Fatalf("expected default table, got %s", store.table)
	}
}

func TestDueForRetryValidatesArgs(t *testing.T) {
	store := MustNewStore(&sql.DB{})

	if _, err := store.DueForRetry(context.Background(), 3, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.DueForRetry(context.Background(), 0, 30); !errors.Is(err, admsrelay.ErrInvalidMaxRetry) {
		t.Fatalf("expected ErrInvalidMaxRetry, got %v", err)
	}
}

func TestQueriesUseTable(t *testing.T) {
	q := newQueries("relay.logs")
	for name, query := range map[string]string{
		"insert":    q.insert,
		"selectDue": q.selectDue,
		"increment": q.incrementRetry,
		"cleanup":   q.cleanupDead,
	} {
		if !strings.Contains(query, "relay.logs") {
			t.Fatalf("%s query does not reference table: %s", name, query)
		}
	}
	if !strings.Contains(q.selectDue, "ORDER BY `timestamp` ASC") {
		t.Fatalf("expected oldest-first ordering: %s", q.selectDue)
	}
	if strings.Index(q.incrementRetry, "status = CASE") > strings.Index(q.incrementRetry, "retry_count = retry_count + 1") {
		t.Fatalf("status must be assigned before retry_count: %s", q.incrementRetry)
	}
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("a", maxErrorLen+10)
	msg := truncateError(errors.New(long))
	if len([]rune(msg)) != maxErrorLen {
		t.Fatalf("expected truncated length %d, got %d", maxErrorLen, len([]rune(msg)))
	}
	if truncateError(nil) != "" {
		t.Fatalf("expected empty message for nil error")
	}
}
