package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/davarch/ci-wiki-sync/internal/application"
)

func TestWatchAndReload_StopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(targetsOnly), 0o600); err != nil {
		t.Fatal(err)
	}

	log := zaptest.NewLogger(t)
	sched := application.NewScheduler(log, nil, nil, time.Minute, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := watchAndReload(ctx, path, log, sched)

	select {
	case <-done:
		t.Fatal("watcher stopped before the context was canceled")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher still running after cancel")
	}
}

func TestWatchAndReload_NoConfigPath(t *testing.T) {
	done := watchAndReload(context.Background(), "", zaptest.NewLogger(t), nil)
	select {
	case <-done:
	default:
		t.Fatal("expected a closed channel without a config path")
	}
}
