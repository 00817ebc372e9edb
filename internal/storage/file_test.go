package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"shutdownsched/internal/task"
	logx "shutdownsched/pkg/logx"
)

const testPath = "/data/shutdown-scheduler/taskDatabase.json"

func openMem(t *testing.T, fs afero.Fs) Store {
	t.Helper()
	st, err := Open(Config{Path: testPath, Fs: fs}, logx.Nop())
	require.NoError(t, err)
	return st
}

func sampleTasks() []task.ScheduledTask {
	return []task.ScheduledTask{
		{
			Name:         "ScheduledTask_aaaaaaaaaaaa",
			Action:       task.ActionShutdown,
			ScheduleType: task.Once,
			Timestamp:    time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC).UnixMilli(),
			NativeJobID:  "at:7",
		},
		{
			Name:         "ScheduledTask_bbbbbbbbbbbb",
			Action:       task.ActionReboot,
			ScheduleType: task.Weekly,
			DaysOfWeek:   task.NewDaySet(time.Monday, time.Friday),
			Timestamp:    time.Date(2024, 1, 5, 6, 30, 0, 0, time.UTC).UnixMilli(),
			NativeJobID:  "cron:ScheduledTask_bbbbbbbbbbbb",
		},
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	st := openMem(t, afero.NewMemMapFs())

	got, err := st.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	st := openMem(t, fs)
	ctx := context.Background()

	want := sampleTasks()
	require.NoError(t, st.ReplaceAll(ctx, want))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// A fresh handle sees the same rows in the same order.
	got2, err := openMem(t, fs).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got2)

	raw, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"taskName": "ScheduledTask_aaaaaaaaaaaa"`)
	require.Contains(t, string(raw), `"daysOfWeek": [`)
}

func TestFileStoreEmptySetWritesArray(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	st := openMem(t, fs)
	ctx := context.Background()

	require.NoError(t, st.ReplaceAll(ctx, sampleTasks()))
	require.NoError(t, st.ReplaceAll(ctx, nil))

	raw, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(raw))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

type failRenameFs struct {
	afero.Fs
}

func (f failRenameFs) Rename(oldname, newname string) error {
	return errors.New("disk full")
}

func TestFileStoreFailedWriteKeepsOldContent(t *testing.T) {
	t.Parallel()
	mem := afero.NewMemMapFs()
	ctx := context.Background()

	require.NoError(t, openMem(t, mem).ReplaceAll(ctx, sampleTasks()))
	before, err := afero.ReadFile(mem, testPath)
	require.NoError(t, err)

	st := openMem(t, failRenameFs{Fs: mem})
	err = st.ReplaceAll(ctx, sampleTasks()[:1])
	require.Error(t, err)

	after, err := afero.ReadFile(mem, testPath)
	require.NoError(t, err)
	require.Equal(t, before, after)

	entries, err := afero.ReadDir(mem, "/data/shutdown-scheduler")
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestFileStoreCorruptFileIsPreserved(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	require.NoError(t, fs.MkdirAll("/data/shutdown-scheduler", 0o755))
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("{not json"), 0o644))

	st := openMem(t, fs)
	fst := st.(*fileStore)
	fst.now = func() time.Time { return time.UnixMilli(1700000000000) }

	_, err := st.Load(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorrupt))
	var ce *CorruptError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, testPath, ce.Path)

	// Loading again must not touch the file.
	raw, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	require.Equal(t, "{not json", string(raw))

	require.NoError(t, st.ReplaceAll(ctx, sampleTasks()[:1]))

	moved, err := afero.ReadFile(fs, testPath+".corrupt-1700000000000")
	require.NoError(t, err)
	require.Equal(t, "{not json", string(moved))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFileStoreCanceledContextLeavesFileAlone(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	st := openMem(t, fs)
	require.NoError(t, st.ReplaceAll(context.Background(), sampleTasks()))
	before, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, st.ReplaceAll(ctx, nil), context.Canceled)
	_, err = st.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)

	after, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis", Path: testPath}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Path: "  "}, logx.Nop())
	require.Error(t, err)
}

func TestCorruptErrorUnwraps(t *testing.T) {
	t.Parallel()
	inner := os.ErrPermission
	err := &CorruptError{Path: "x", Err: inner}
	require.ErrorIs(t, err, inner)
	require.ErrorIs(t, err, ErrCorrupt)
}
