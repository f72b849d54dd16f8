package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xraph/sluice/notify"
)

// memStore is an in-memory suppression store.
type memStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{last: make(map[string]time.Time)}
}

func (m *memStore) LastNotified(_ context.Context, teamID string, kind notify.Kind) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[teamID+":"+string(kind)], nil
}

func (m *memStore) RecordNotified(_ context.Context, teamID string, kind notify.Kind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[teamID+":"+string(kind)] = at
	return nil
}

// countingNotifier records sends and optionally fails.
type countingNotifier struct {
	mu    sync.Mutex
	sent  []notify.Notification
	fail  bool
	calls int
}

func (c *countingNotifier) Send(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return errors.New("delivery refused")
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestGate_SendsOncePerWindow(t *testing.T) {
	n := &countingNotifier{}
	g := notify.NewGate(newMemStore(), n)

	ctx := context.Background()
	g.MaybeNotify(ctx, "team-1", notify.KindConcurrencyLimitReached)
	g.MaybeNotify(ctx, "team-1", notify.KindConcurrencyLimitReached)
	g.MaybeNotify(ctx, "team-1", notify.KindConcurrencyLimitReached)
	g.Close()

	if got := n.count(); got != 1 {
		t.Fatalf("notifier called %d times, want 1 (15-day suppression)", got)
	}
}

func TestGate_DistinctTeamsNotSuppressed(t *testing.T) {
	n := &countingNotifier{}
	g := notify.NewGate(newMemStore(), n)

	ctx := context.Background()
	g.MaybeNotify(ctx, "team-1", notify.KindConcurrencyLimitReached)
	g.MaybeNotify(ctx, "team-2", notify.KindConcurrencyLimitReached)
	g.Close()

	if got := n.count(); got != 2 {
		t.Fatalf("notifier called %d times, want 2", got)
	}
}

func TestGate_ResendsAfterInterval(t *testing.T) {
	st := newMemStore()
	n := &countingNotifier{}
	g := notify.NewGate(st, n, notify.WithResendInterval(time.Hour))

	ctx := context.Background()
	g.MaybeNotify(ctx, "team-1", notify.KindConcurrencyLimitReached)

	// Age the suppression record past the interval.
	st.mu.Lock()
	st.last["team-1:"+string(notify.KindConcurrencyLimitReached)] = time.Now().Add(-2 * time.Hour)
	st.mu.Unlock()

	g.MaybeNotify(ctx, "team-1", notify.KindConcurrencyLimitReached)
	g.Close()

	if got := n.count(); got != 2 {
		t.Fatalf("notifier called %d times, want 2 after interval elapsed", got)
	}
}

func TestGate_DeliveryFailureSwallowed(t *testing.T) {
	n := &countingNotifier{fail: true}
	g := notify.NewGate(newMemStore(), n)

	// Must not panic or surface the delivery error.
	g.MaybeNotify(context.Background(), "team-1", notify.KindConcurrencyLimitReached)
	g.Close()

	if got := n.count(); got != 1 {
		t.Fatalf("notifier called %d times, want 1", got)
	}
}

func TestWebhookNotifier_Posts(t *testing.T) {
	got := make(chan notify.Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n notify.Notification
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := jsonDecode(r, &n); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wn := notify.NewWebhookNotifier(srv.URL, srv.Client())
	err := wn.Send(context.Background(), notify.Notification{
		TeamID: "team-1",
		Kind:   notify.KindConcurrencyLimitReached,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	n := <-got
	if n.TeamID != "team-1" || n.Kind != notify.KindConcurrencyLimitReached {
		t.Errorf("posted notification = %+v", n)
	}
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wn := notify.NewWebhookNotifier(srv.URL, srv.Client())
	if err := wn.Send(context.Background(), notify.Notification{TeamID: "t"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck // test helper
	return json.NewDecoder(r.Body).Decode(v)
}
