package health

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestProbeRunnerAllHealthy(t *testing.T) {
	p := NewProbeRunner(time.Second, 100*time.Millisecond,
		CheckerFunc{Name: "a", Fn: func(context.Context) error { return nil }},
		CheckerFunc{Name: "b", Fn: func(context.Context) error { return nil }},
	)
	ready, results := p.Ready(context.Background())
	if !ready {
		t.Fatalf("expected ready, got %+v", results)
	}
	if len(results) != 2 || results[0].Name != "a" || results[1].Name != "b" {
		t.Fatalf("unexpected results order: %+v", results)
	}
}

func TestProbeRunnerReportsFailure(t *testing.T) {
	p := NewProbeRunner(time.Second, 100*time.Millisecond,
		CheckerFunc{Name: "db", Fn: func(context.Context) error { return errors.New("db down") }},
	)
	ready, results := p.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	if results[0].Healthy || results[0].Error != "db down" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestProbeRunnerPerCheckTimeout(t *testing.T) {
	p := NewProbeRunner(time.Second, 20*time.Millisecond,
		CheckerFunc{Name: "slow", Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	start := time.Now()
	ready, _ := p.Ready(context.Background())
	if ready {
		t.Fatal("expected slow check to fail")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("per-check timeout was not applied")
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if res := RedisChecker(client).Check(context.Background()); !res.Healthy {
		t.Fatalf("expected healthy redis, got %+v", res)
	}
	mr.Close()
	if res := RedisChecker(client).Check(context.Background()); res.Healthy {
		t.Fatal("expected unhealthy redis after close")
	}
}

func TestDBChecker(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if res := DBChecker(db).Check(context.Background()); !res.Healthy {
		t.Fatalf("expected healthy db, got %+v", res)
	}
	_ = sqlDB.Close()
	if res := DBChecker(db).Check(context.Background()); res.Healthy {
		t.Fatal("expected unhealthy db after close")
	}
}
