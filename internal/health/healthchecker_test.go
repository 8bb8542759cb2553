package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeChecker struct {
	name    string
	healthy atomic.Int32
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() == 1 }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) { /* no-op */ }

func TestServiceHealthChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.Nop()

	a := &fakeChecker{name: "a"}
	b := &fakeChecker{name: "b"}
	a.healthy.Store(1)
	b.healthy.Store(1)

	svc := NewServiceHealthChecker(logger, a, b)
	go svc.Start(ctx, 10*time.Millisecond)

	// Initially healthy
	waitTrue(t, func() bool { return svc.IsHealthy() })

	// Flip one to unhealthy
	b.healthy.Store(0)
	waitTrue(t, func() bool { return !svc.IsHealthy() })
	if got := svc.Components(); got["a"] != true || got["b"] != false {
		t.Fatalf("components = %v", got)
	}

	// Recover
	b.healthy.Store(1)
	waitTrue(t, func() bool { return svc.IsHealthy() })
}

type pinger struct{ err atomic.Value }

func (p *pinger) HealthPing(context.Context) error {
	if e, ok := p.err.Load().(error); ok {
		return e
	}
	return nil
}

func TestPingChecker(t *testing.T) {
	p := &pinger{}
	hc := NewPingChecker("persistence", p, zerolog.Nop(), 0)
	if hc.IsHealthy() {
		t.Fatal("healthy before the first probe")
	}
	if !hc.Check(context.Background()) || !hc.IsHealthy() {
		t.Fatal("expected healthy after a good probe")
	}
	p.err.Store(errors.New("disk gone"))
	if hc.Check(context.Background()) || hc.IsHealthy() {
		t.Fatal("expected unhealthy after a failed probe")
	}
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
