package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shutdownsched/internal/config"
	"shutdownsched/internal/dispatch/dispatchtest"
	"shutdownsched/internal/manager"
	"shutdownsched/internal/schedule"
	"shutdownsched/internal/task"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type notifyLog struct {
	mu     sync.Mutex
	states []string
}

func (n *notifyLog) notify(state string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
	return true, nil
}

func (n *notifyLog) has(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.states {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func newTestApp(t *testing.T, cfgBody string) (*App, *dispatchtest.Dispatcher) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := ""
	if cfgBody != "" {
		cfgPath = filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte(cfgBody), 0o644))
	}
	disp := dispatchtest.NewDispatcher()
	a, err := New(context.Background(), Options{
		ConfigPath: cfgPath,
		StorePath:  filepath.Join(dir, "shutdown-scheduler", "taskDatabase.json"),
		LogLevel:   "error",
		Dispatcher: disp,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, disp
}

func TestNewAppliesOverrides(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, "logging:\n  level: debug\ntasks:\n  prefix: NightlyOff\n")

	cfg := a.Config()
	require.Equal(t, "error", cfg.Logging.Level)
	require.True(t, strings.HasSuffix(a.Manager().Path(), filepath.Join("shutdown-scheduler", "taskDatabase.json")))
	require.Equal(t, "NightlyOff", a.Manager().Prefix())
	require.Equal(t, "fake", a.Manager().Backend())
}

func TestNewRejectsInvalidOverride(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Options{
		StorePath:  filepath.Join(t.TempDir(), "db.json"),
		LogLevel:   "chatty",
		Dispatcher: dispatchtest.NewDispatcher(),
	})
	require.Error(t, err)
}

func TestNewRejectsUnknownConfigField(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"storage":{"drvier":"file"}}`), 0o644))
	_, err := New(context.Background(), Options{ConfigPath: cfgPath, Dispatcher: dispatchtest.NewDispatcher()})
	require.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: " SQLite ", Path: "/var/lib/s/tasks.db"}
	sc := mapStorageConfig(cfg)
	require.Equal(t, "sqlite", sc.Driver)
	require.Equal(t, "/var/lib/s/tasks.db", sc.Path)
	require.Equal(t, defaultBusyTimeout, sc.BusyTimeout)

	cfg.Storage.BusyTimeout = "3s"
	require.Equal(t, 3*time.Second, mapStorageConfig(cfg).BusyTimeout)

	cfg.Storage = config.StorageConfig{Driver: "file", Path: "/tmp/x.json", BusyTimeout: "3s"}
	require.Zero(t, mapStorageConfig(cfg).BusyTimeout)
}

func TestWatchStatusLineAndNotify(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	a, _ := newTestApp(t, "")

	// Rebuild the manager with a fixed clock.
	mgr, err := manager.New(context.Background(), a.store, a.disp, manager.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	a.mgr = mgr
	_, err = mgr.Create(context.Background(), manager.Description{
		Action:       task.ActionShutdown,
		ScheduleType: task.Once,
		Trigger:      schedule.Trigger{Delay: schedule.Delay{Hours: 2, Minutes: 5}},
	})
	require.NoError(t, err)

	out := &syncBuffer{}
	n := &notifyLog{}
	require.NoError(t, a.Start(context.Background(), WatchOptions{
		StatusOut: out,
		Notify:    n.notify,
		Now:       func() time.Time { return now },
	}))
	require.Error(t, a.Start(context.Background(), WatchOptions{}))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Shutdown in 2h 5m 0s")
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, n.has("READY=1"))
	require.Eventually(t, func() bool { return n.has("STATUS=Shutdown in 2h 5m 0s") }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	require.True(t, n.has("STOPPING=1"))
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	require.NoError(t, a.Err())
}

func TestWatchEmptyRegistryShowsPlaceholder(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, "")
	out := &syncBuffer{}
	require.NoError(t, a.Start(context.Background(), WatchOptions{
		StatusOut: out,
		Notify:    func(string) (bool, error) { return false, nil },
	}))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "No scheduled tasks")
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
}

func TestWatchReloadsRegistryWrittenElsewhere(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, "")
	require.NoError(t, a.Start(context.Background(), WatchOptions{
		Notify: func(string) (bool, error) { return false, nil },
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})
	// Give the watcher time to register before the write.
	time.Sleep(100 * time.Millisecond)

	other, err := manager.New(context.Background(), a.store, dispatchtest.NewDispatcher())
	require.NoError(t, err)
	created, err := other.Create(context.Background(), manager.Description{
		Action:       task.ActionReboot,
		ScheduleType: task.Daily,
		Trigger:      schedule.Trigger{Delay: schedule.Delay{Hours: 3}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := a.Manager().Get(created.Name)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}
