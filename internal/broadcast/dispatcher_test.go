package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olegiv/newsletter-go/internal/mail"
	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/store"
)

type fakeStore struct {
	newsletters map[string]*model.Newsletter
	subscribers []model.Subscriber
}

func (f *fakeStore) FindNewsletterByID(_ context.Context, id string) (*model.Newsletter, error) {
	n, ok := f.newsletters[id]
	if !ok || !n.Published {
		return nil, nil
	}
	return n, nil
}

func (f *fakeStore) FindActiveSubscriptions(context.Context) ([]model.Subscriber, error) {
	return f.subscribers, nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []mail.Message
	fail     map[string]bool
	block    map[string]bool
	verify   error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	onSend   func()
}

func (s *fakeSender) Send(ctx context.Context, msg mail.Message) error {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	if s.onSend != nil {
		s.onSend()
	}
	if s.block[msg.To] {
		<-ctx.Done()
		return ctx.Err()
	}
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[msg.To] {
		return fmt.Errorf("550 mailbox unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Verify(context.Context) error { return s.verify }

type fakeRecorder struct {
	sent, failed atomic.Int32
	broadcasts   atomic.Int32
}

func (r *fakeRecorder) ObserveDelivery(outcome string, _ time.Duration) {
	if outcome == OutcomeSent {
		r.sent.Add(1)
	} else {
		r.failed.Add(1)
	}
}

func (r *fakeRecorder) ObserveBroadcast(int, int, time.Duration) { r.broadcasts.Add(1) }

type links struct{}

func (links) URL(email string) string { return "https://news.example/unsub?email=" + email }

func subscribers(n int) []model.Subscriber {
	out := make([]model.Subscriber, n)
	for i := range out {
		out[i] = model.Subscriber{Email: fmt.Sprintf("r%02d@example.com", i)}
	}
	return out
}

func newFixture(recipients int) (*fakeStore, *fakeSender, *fakeRecorder) {
	st := &fakeStore{
		newsletters: map[string]*model.Newsletter{
			"n1": {
				ID:        "n1",
				Title:     "Weekly Digest",
				Excerpt:   "This week",
				Content:   `<h2>News</h2><p style="color: red" onclick="x()">Hello</p><script>evil()</script>`,
				Published: true,
			},
			"draft": {ID: "draft", Title: "Draft", Content: "x", Excerpt: "x"},
		},
		subscribers: subscribers(recipients),
	}
	return st, &fakeSender{fail: map[string]bool{}, block: map[string]bool{}}, &fakeRecorder{}
}

func newTestDispatcher(st Store, s mail.Sender, rec Recorder, cfg Config) *Dispatcher {
	return NewDispatcher(st, s, links{}, rec, nil, cfg)
}

func TestBroadcastAllSucceed(t *testing.T) {
	st, sender, rec := newFixture(5)
	d := newTestDispatcher(st, sender, rec, DefaultConfig())

	res, err := d.Broadcast(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Total != 5 || res.Succeeded != 5 || res.Failed != 0 || len(res.Failures) != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(sender.sent) != 5 {
		t.Errorf("sent %d messages, want 5", len(sender.sent))
	}
	if rec.sent.Load() != 5 || rec.broadcasts.Load() != 1 {
		t.Errorf("recorder sent=%d broadcasts=%d", rec.sent.Load(), rec.broadcasts.Load())
	}
}

func TestBroadcastPartialFailure(t *testing.T) {
	st, sender, rec := newFixture(10)
	sender.fail["r07@example.com"] = true
	sender.fail["r02@example.com"] = true
	sender.fail["r05@example.com"] = true
	d := newTestDispatcher(st, sender, rec, Config{Workers: 3})

	res, err := d.Broadcast(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Broadcast must not fail on partial delivery errors: %v", err)
	}
	if res.Total != 10 || res.Succeeded != 7 || res.Failed != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Succeeded+res.Failed != res.Total {
		t.Error("succeeded + failed must equal total")
	}

	want := []string{"r02@example.com", "r05@example.com", "r07@example.com"}
	for i, f := range res.Failures {
		if f.Email != want[i] {
			t.Errorf("failure[%d] = %q, want %q", i, f.Email, want[i])
		}
		if !strings.Contains(f.Reason, "550") {
			t.Errorf("failure reason = %q", f.Reason)
		}
	}
	if rec.failed.Load() != 3 {
		t.Errorf("recorded failures = %d, want 3", rec.failed.Load())
	}
}

func TestBroadcastAllFail(t *testing.T) {
	st, sender, _ := newFixture(3)
	for _, s := range st.subscribers {
		sender.fail[s.Email] = true
	}
	d := newTestDispatcher(st, sender, nil, DefaultConfig())

	res, err := d.Broadcast(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Failed != 3 || res.Succeeded != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestBroadcastAbortsBeforeSending(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		setup   func(*fakeStore, *fakeSender)
		wantErr error
	}{
		{name: "unknown newsletter", id: "missing", wantErr: ErrNewsletterNotFound},
		{name: "draft newsletter", id: "draft", wantErr: ErrNewsletterNotFound},
		{
			name:    "no recipients",
			id:      "n1",
			setup:   func(st *fakeStore, _ *fakeSender) { st.subscribers = nil },
			wantErr: ErrNoRecipients,
		},
		{
			name:    "transport unreachable",
			id:      "n1",
			setup:   func(_ *fakeStore, s *fakeSender) { s.verify = errors.New("dial tcp: connection refused") },
			wantErr: ErrTransportUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, sender, _ := newFixture(3)
			if tt.setup != nil {
				tt.setup(st, sender)
			}
			d := newTestDispatcher(st, sender, nil, DefaultConfig())

			res, err := d.Broadcast(context.Background(), tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Broadcast() error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			if len(sender.sent) != 0 {
				t.Errorf("%d messages sent, want none", len(sender.sent))
			}
		})
	}
}

func TestNotFoundIsStoreNotFound(t *testing.T) {
	if !errors.Is(ErrNewsletterNotFound, store.ErrNotFound) {
		t.Error("ErrNewsletterNotFound should match store.ErrNotFound")
	}
}

func TestBroadcastPerRecipientTimeout(t *testing.T) {
	st, sender, _ := newFixture(4)
	sender.block["r01@example.com"] = true
	d := newTestDispatcher(st, sender, nil, Config{Workers: 4, SendTimeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := d.Broadcast(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("slow recipient stalled the broadcast")
	}
	if res.Succeeded != 3 || res.Failed != 1 || res.Failures[0].Email != "r01@example.com" {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Failures[0].Reason, context.DeadlineExceeded.Error()) {
		t.Errorf("reason = %q", res.Failures[0].Reason)
	}
}

func TestBroadcastCancelled(t *testing.T) {
	st, sender, _ := newFixture(6)
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	sender.onSend = func() { once.Do(cancel) }
	d := newTestDispatcher(st, sender, nil, Config{Workers: 1})

	res, err := d.Broadcast(ctx, "n1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Broadcast() error = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("partial result expected on cancellation")
	}
	if res.Total != 6 || res.Succeeded+res.Failed != 6 || !res.Cancelled {
		t.Errorf("result = %+v", res)
	}
	if res.Succeeded > 1 {
		t.Errorf("succeeded = %d, at most the in-flight send may complete", res.Succeeded)
	}
}

func TestBroadcastCancelByID(t *testing.T) {
	st, sender, _ := newFixture(4)
	for _, r := range st.subscribers {
		sender.block[r.Email] = true
	}
	started := make(chan struct{})
	var once sync.Once
	sender.onSend = func() { once.Do(func() { close(started) }) }
	d := newTestDispatcher(st, sender, nil, Config{Workers: 1, SendTimeout: time.Minute})

	if d.Cancel("n1") {
		t.Error("Cancel() = true with nothing running")
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := d.Broadcast(context.Background(), "n1")
		done <- outcome{res, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast never started sending")
	}

	if _, err := d.Broadcast(context.Background(), "n1"); !errors.Is(err, ErrInProgress) {
		t.Errorf("second Broadcast() error = %v, want ErrInProgress", err)
	}
	if !d.Cancel("n1") {
		t.Fatal("Cancel() = false for a running broadcast")
	}

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled broadcast did not return")
	}
	if !errors.Is(got.err, context.Canceled) {
		t.Errorf("Broadcast() error = %v, want context.Canceled", got.err)
	}
	if got.res == nil || !got.res.Cancelled || got.res.Succeeded != 0 || got.res.Failed != 4 {
		t.Errorf("result = %+v", got.res)
	}
	if d.Cancel("n1") {
		t.Error("Cancel() = true after the broadcast finished")
	}
}

func TestBroadcastRespectsWorkerLimit(t *testing.T) {
	st, sender, _ := newFixture(30)
	d := newTestDispatcher(st, sender, nil, Config{Workers: 4})

	if _, err := d.Broadcast(context.Background(), "n1"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := sender.maxSeen.Load(); got > 4 {
		t.Errorf("max concurrent sends = %d, want <= 4", got)
	}
}

func TestBroadcastMessageContent(t *testing.T) {
	st, sender, _ := newFixture(2)
	d := newTestDispatcher(st, sender, nil, DefaultConfig())

	if _, err := d.Broadcast(context.Background(), "n1"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for _, msg := range sender.sent {
		if msg.Subject != "Weekly Digest" {
			t.Errorf("subject = %q", msg.Subject)
		}
		if strings.Contains(msg.HTML, "evil") || strings.Contains(msg.HTML, "onclick") {
			t.Errorf("unsanitized HTML sent to %s", msg.To)
		}
		if !strings.Contains(msg.HTML, "color: red") {
			t.Errorf("allowed style dropped for %s", msg.To)
		}
		if !strings.Contains(msg.HTML, "unsub?email="+msg.To) {
			t.Errorf("HTML for %s lacks its own unsubscribe link", msg.To)
		}
		if !strings.Contains(msg.Text, "Hello") || strings.Contains(msg.Text, "<p") {
			t.Errorf("text body for %s = %q", msg.To, msg.Text)
		}
	}
}

func TestSendTest(t *testing.T) {
	st, sender, _ := newFixture(3)
	d := newTestDispatcher(st, sender, nil, DefaultConfig())

	if err := d.SendTest(context.Background(), "n1", " Admin@Example.com "); err != nil {
		t.Fatalf("SendTest: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "admin@example.com" {
		t.Fatalf("sent = %+v", sender.sent)
	}

	err := d.SendTest(context.Background(), "n1", "nope")
	if _, ok := model.AsValidationError(err); !ok {
		t.Errorf("invalid address: error = %v, want validation error", err)
	}

	if err := d.SendTest(context.Background(), "draft", "a@example.com"); !errors.Is(err, ErrNewsletterNotFound) {
		t.Errorf("draft: error = %v", err)
	}

	sender.fail["b@example.com"] = true
	if err := d.SendTest(context.Background(), "n1", "b@example.com"); err == nil {
		t.Error("delivery failure should be returned")
	}
}
