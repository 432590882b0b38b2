package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestProbeRunnerAllHealthy(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:health_ok?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runner := NewProbeRunner(time.Second, 0, NewDBChecker(db), NewRedisChecker(client))
	ready, results := runner.Ready(context.Background())
	if !ready {
		t.Fatalf("expected ready, got %+v", results)
	}
	if len(results) != 2 || results[0].Name != "database" || results[1].Name != "redis" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestProbeRunnerReportsFailedDependency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	runner := NewProbeRunner(500*time.Millisecond, 0, NewRedisChecker(client))
	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready with redis down")
	}
	if results[0].Healthy || results[0].Error == "" {
		t.Fatalf("expected failure detail, got %+v", results[0])
	}
}

func TestProbeRunnerCachesResults(t *testing.T) {
	var calls atomic.Int32
	failing := CheckerFunc{Name: "flaky", Fn: func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := NewProbeRunner(time.Second, time.Minute, failing)
	runner.now = func() time.Time { return now }

	runner.Ready(context.Background())
	runner.Ready(context.Background())
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected cached second probe, checker ran %d times", got)
	}
	now = now.Add(2 * time.Minute)
	runner.Ready(context.Background())
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected probe after cache expiry, checker ran %d times", got)
	}
}
