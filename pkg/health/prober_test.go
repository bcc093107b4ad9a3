package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedChecker returns the scripted results in order, then repeats the last.
type scriptedChecker struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (c *scriptedChecker) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	return c.results[i]
}

var errDown = errors.New("backend down")

func TestProberThresholdScenario(t *testing.T) {
	checker := &scriptedChecker{results: []error{errDown, errDown, errDown, nil}}
	p := NewProber(Config{Threshold: 3}, checker)

	var unhealthyCalls atomic.Int32
	p.OnUnhealthy(func() { unhealthyCalls.Add(1) })

	want := []bool{true, true, false, true}
	for i, exp := range want {
		p.Probe(context.Background())
		if got := p.Healthy(); got != exp {
			t.Errorf("after probe %d: Healthy() = %v, want %v", i+1, got, exp)
		}
	}

	if unhealthyCalls.Load() != 1 {
		t.Errorf("unhealthy callback fired %d times, want 1", unhealthyCalls.Load())
	}
	if st := p.State(); st.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after success, want 0", st.ConsecutiveFailures)
	}
}

func TestProberUnhealthyFiresOncePerTransition(t *testing.T) {
	checker := &scriptedChecker{results: []error{errDown}}
	p := NewProber(Config{Threshold: 2}, checker)

	var unhealthyCalls atomic.Int32
	p.OnUnhealthy(func() { unhealthyCalls.Add(1) })

	for i := 0; i < 6; i++ {
		p.Probe(context.Background())
	}

	if unhealthyCalls.Load() != 1 {
		t.Errorf("unhealthy callback fired %d times, want 1", unhealthyCalls.Load())
	}
	if p.State().ConsecutiveFailures != 6 {
		t.Errorf("ConsecutiveFailures = %d, want 6", p.State().ConsecutiveFailures)
	}
}

func TestProberResetDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	p := NewProber(Config{Threshold: 1}, CheckerFunc(func(ctx context.Context) error {
		<-release
		return errDown
	}))

	done := make(chan struct{})
	go func() {
		p.Probe(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Reset()
	close(release)
	<-done

	if !p.Healthy() {
		t.Error("Healthy() = false, stale probe result was recorded after Reset")
	}
}

func TestProberTimeoutBoundsProbe(t *testing.T) {
	p := NewProber(Config{Timeout: 20 * time.Millisecond}, CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	if p.Probe(context.Background()) {
		t.Error("Probe() = true, want false on timeout")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("probe took %v, want bounded by timeout", elapsed)
	}
}

func TestProberPeriodic(t *testing.T) {
	var calls atomic.Int32
	p := NewProber(Config{}, CheckerFunc(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))

	p.StartPeriodic(15 * time.Millisecond)
	p.StartPeriodic(15 * time.Millisecond) // no-op while running
	if !p.IsRunning() {
		t.Fatal("IsRunning() = false after StartPeriodic")
	}

	time.Sleep(80 * time.Millisecond)
	p.StopPeriodic()
	p.StopPeriodic() // idempotent

	n := calls.Load()
	if n < 2 {
		t.Errorf("periodic probes = %d, want at least 2", n)
	}

	time.Sleep(40 * time.Millisecond)
	if calls.Load() > n+1 {
		t.Errorf("probes continued after StopPeriodic: %d -> %d", n, calls.Load())
	}
}

func TestProberMarkHealthy(t *testing.T) {
	p := NewProber(Config{Threshold: 1}, CheckerFunc(func(ctx context.Context) error { return errDown }))
	p.Probe(context.Background())
	if p.Healthy() {
		t.Fatal("Healthy() = true after threshold failure")
	}

	p.MarkHealthy()
	if !p.Healthy() || p.State().ConsecutiveFailures != 0 {
		t.Errorf("MarkHealthy did not restore state: %+v", p.State())
	}
}

func TestHTTPChecker(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultLivenessPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"status":"UP"}`))
	}))
	defer srv.Close()

	c := NewHTTPChecker(srv.URL+"/", "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	err := c.Check(ctx)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Check() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", se.Code)
	}
}

func TestHTTPCheckerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := NewHTTPChecker(addr, "/health").Check(ctx); err == nil {
		t.Error("Check() on closed server succeeded")
	}
}

func TestBaseURLFromFeed(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ws://api.example.com:8080/ws", "http://api.example.com:8080", false},
		{"wss://api.example.com/notifications/ws", "https://api.example.com", false},
		{"https://api.example.com/x", "https://api.example.com", false},
		{"redis://localhost:6379/0", "", true},
		{"ws:///nohost", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := BaseURLFromFeed(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
