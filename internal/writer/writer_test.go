package writer

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestUpdateURL(t *testing.T) {
	got := UpdateURL(DefaultBaseURL, "ABC-1", "Hello world\n\n---\n### Backlinks\n- [[Beta]]")
	want := "bear://x-callback-url/add-text?id=ABC-1" +
		"&mode=replace_all&open_note=no&exclude_trashed=no&new_window=no&show_window=no&edit=no&timestamp=no" +
		"&text=Hello%20world%0A%0A---%0A%23%23%23%20Backlinks%0A-%20%5B%5BBeta%5D%5D"
	if got != want {
		t.Errorf("url =\n%s\nwant\n%s", got, want)
	}
}

func TestUpdateURL_RoundTripsText(t *testing.T) {
	text := "a+b & c=d ?é #tag 100%"
	u, err := url.Parse(UpdateURL(DefaultBaseURL, "id", text))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := u.Query().Get("text"); got != text {
		t.Errorf("decoded text = %q, want %q", got, text)
	}
	if strings.Contains(u.RawQuery, "+") {
		t.Errorf("query contains '+': %s", u.RawQuery)
	}
}

type call struct {
	name string
	args []string
}

func TestBear_Update(t *testing.T) {
	var calls []call
	b := NewBear(
		WithSettleDelay(0),
		WithRunner(func(_ context.Context, name string, args ...string) error {
			calls = append(calls, call{name, args})
			return nil
		}),
	)

	if err := b.Update(context.Background(), "U1", "text"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.name != "open" || len(c.args) != 2 || c.args[0] != "-g" {
		t.Errorf("call = %+v", c)
	}
	if !strings.HasPrefix(c.args[1], "bear://x-callback-url/add-text?id=U1&") {
		t.Errorf("url = %s", c.args[1])
	}
}

func TestBear_LaunchError(t *testing.T) {
	b := NewBear(
		WithCommand("missing-launcher"),
		WithRunner(func(context.Context, string, ...string) error { return errors.New("not found") }),
	)
	err := b.Update(context.Background(), "U1", "text")
	if err == nil || !strings.Contains(err.Error(), "missing-launcher") {
		t.Fatalf("err = %v", err)
	}
}

func TestBear_SettleDelayHonorsContext(t *testing.T) {
	b := NewBear(
		WithSettleDelay(time.Hour),
		WithRunner(func(context.Context, string, ...string) error { return nil }),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Update(ctx, "U1", "text")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("settle delay ignored cancellation")
	}
}

type recorder struct {
	mu      sync.Mutex
	active  int
	overlap bool
	uids    []string
}

func (r *recorder) Update(_ context.Context, uid, _ string) error {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.active--
	r.uids = append(r.uids, uid)
	r.mu.Unlock()
	return nil
}

func TestDispatcher_SerializesCallers(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Update(context.Background(), "uid", "text"); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()
	cancel()

	if err := <-runDone; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.overlap {
		t.Error("downstream writer called concurrently")
	}
	if len(rec.uids) != 10 {
		t.Errorf("updates = %d, want 10", len(rec.uids))
	}

	if err := d.Update(context.Background(), "late", "text"); !errors.Is(err, ErrStopped) {
		t.Errorf("Update after stop = %v, want ErrStopped", err)
	}
}

func TestDispatcher_PropagatesErrors(t *testing.T) {
	want := errors.New("boom")
	d := NewDispatcher(failing{want})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if err := d.Update(context.Background(), "u", "t"); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

type failing struct{ err error }

func (f failing) Update(context.Context, string, string) error { return f.err }

func TestLogWriter(t *testing.T) {
	if err := NewLogWriter(nil).Update(context.Background(), "u", "t"); err != nil {
		t.Errorf("Update: %v", err)
	}
}
