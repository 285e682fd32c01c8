package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/config"
	"memoryd/internal/embedding"
	"memoryd/internal/extract"
	"memoryd/internal/invertedindex"
	"memoryd/internal/lock"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
	"memoryd/internal/store"
	syncsvc "memoryd/internal/sync"
	"memoryd/internal/vectorindex"
	"memoryd/internal/window"
)

type fakeChat struct {
	responses []string
	calls     int
}

func (f *fakeChat) Name() string { return "fake" }
func (f *fakeChat) Complete(context.Context, string, string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return `{"boundary": false}`, nil
}

func newCoordinator(chat *fakeChat, log obslog.Logger) (*Coordinator, window.Repository, *store.Store[model.ConversationStatus]) {
	windows := window.NewMemoryRepository()
	statuses := store.NewConversationStatusStore(store.NewMemoryBackend())
	memcells := store.NewMemCellStore(store.NewMemoryBackend())
	locker := lock.NewMemoryLocker(obslog.NoopMetrics{})

	windowCfg := config.WindowConfig{MaxWindowSize: 500, SmartMaskThreshold: 50, BoundaryMaxRetries: 3}
	boundary := extract.NewBoundaryDetector(chat, windowCfg, log, obslog.NoopMetrics{})
	embedder := embedding.NewDeterministic(8, true, 0)
	semantic := extract.NewSemanticExtractor(chat, embedder, log)
	eventlog := extract.NewEventLogExtractor(chat, embedder, config.ConcurrencyConfig{AtomicFactEmbedConcurrency: 4}, log)

	docs := store.NewEpisodicMemoryStore(store.NewMemoryBackend())
	vecs := vectorindex.NewMemoryIndex()
	inv := invertedindex.NewMemoryIndex()
	sync := syncsvc.NewService(docs, vecs, inv, log)

	c := New(windows, statuses, memcells, locker, boundary, semantic, eventlog, embedder, sync, nil, windowCfg, log, obslog.NoopMetrics{})
	return c, windows, statuses
}

func msg(groupID, id, sender, content string, ts time.Time) model.RawMessage {
	return model.RawMessage{GroupID: groupID, MessageID: id, Sender: sender, Role: model.RoleUser, Content: content, CreateTime: ts}
}

func TestMemorize_NoBoundary_Accumulates(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{responses: []string{`{"boundary": false}`}}
	c, _, statuses := newCoordinator(chat, obslog.NopLogger{})

	now := time.Now()
	result, err := c.Memorize(ctx, msg("g1", "m1", "alice", "hi there", now))
	require.NoError(t, err)
	assert.Equal(t, "accumulated", result.StatusInfo)
	assert.Equal(t, 0, result.Count)

	status, ok, err := statuses.GetByID(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, status.NewMsgStartTime.Equal(now) || status.NewMsgStartTime.After(now))
}

func TestMemorize_BoundaryFound_ExtractsAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{responses: []string{
		`{"boundary": true, "index": 0, "summary": "alice greeted bob"}`,
		"alice said hi to bob and bob replied",
		`[]`,
		`[]`,
	}}
	c, windows, statuses := newCoordinator(chat, obslog.NopLogger{})

	now := time.Now()
	result, err := c.Memorize(ctx, msg("g1", "m1", "alice", "hi bob", now))
	require.NoError(t, err)
	assert.Equal(t, "extracted", result.StatusInfo)
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.SavedMemories, 1)

	status, ok, err := statuses.GetByID(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, status.OldMsgStartTime.Equal(now))
	assert.True(t, status.NewMsgStartTime.After(now))

	entries, err := windows.Range(ctx, "g1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SyncStatusConsumed, entries[0].SyncStatus)
}

func TestMemorize_DuplicateMessageID_IsNoop(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{responses: []string{
		`{"boundary": true, "index": 0, "summary": "s"}`,
		"episode body",
		`[]`,
		`[]`,
	}}
	c, _, _ := newCoordinator(chat, obslog.NopLogger{})

	now := time.Now()
	m := msg("g1", "m1", "alice", "hi bob", now)
	_, err := c.Memorize(ctx, m)
	require.NoError(t, err)

	result, err := c.Memorize(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "accumulated", result.StatusInfo)
	assert.Equal(t, 0, result.Count)
}

func TestMemorize_WaitSignal_DoesNotAdvanceCursor(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{responses: []string{`{"wait": true}`}}
	c, _, statuses := newCoordinator(chat, obslog.NopLogger{})

	now := time.Now()
	_, err := c.Memorize(ctx, msg("g1", "m1", "alice", "hi", now))
	require.NoError(t, err)

	status, ok, err := statuses.GetByID(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, status.NewMsgStartTime.Equal(now))
}
