package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/config"
	"memoryd/internal/model"
	"memoryd/internal/obslog"
)

type fakeChat struct {
	responses  []string
	errs       []error
	calls      int
	lastSystem string
}

func (f *fakeChat) Name() string { return "fake" }
func (f *fakeChat) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	f.lastSystem = systemPrompt
	var resp string
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

func rawMsg(sender, content string, ts time.Time) model.RawMessage {
	return model.RawMessage{MessageID: sender + ts.String(), Sender: sender, Role: model.RoleUser, Content: content, CreateTime: ts}
}

func TestBoundaryDetector_NoBoundary_ReturnsAccumulate(t *testing.T) {
	chat := &fakeChat{responses: []string{"no_boundary"}}
	d := NewBoundaryDetector(chat, config.WindowConfig{}, obslog.NopLogger{}, obslog.NoopMetrics{})
	now := time.Now()
	history := []model.RawMessage{rawMsg("u1", "hi", now)}
	new := []model.RawMessage{rawMsg("u2", "hey", now.Add(time.Second))}

	dec := d.Decide(context.Background(), history, new, []string{"u1", "u2"}, "g1")
	assert.Equal(t, DecisionAccumulate, dec.Kind)
	assert.False(t, dec.Status.ShouldWait)
}

func TestBoundaryDetector_BoundaryFound_EmitsMemCell(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"boundary": true, "index": 1, "summary": "they planned a trip"}`,
		"Alice and Bob discussed a trip to Kyoto.",
	}}
	d := NewBoundaryDetector(chat, config.WindowConfig{}, obslog.NopLogger{}, obslog.NoopMetrics{})
	now := time.Now()
	history := []model.RawMessage{rawMsg("alice", "let's go to Kyoto", now)}
	new := []model.RawMessage{rawMsg("bob", "sounds great", now.Add(time.Second))}

	dec := d.Decide(context.Background(), history, new, []string{"alice", "bob"}, "g1")
	require.Equal(t, DecisionEmit, dec.Kind)
	require.NotNil(t, dec.MemCell)
	assert.Equal(t, "they planned a trip", dec.MemCell.Summary)
	assert.Equal(t, "Alice and Bob discussed a trip to Kyoto.", dec.MemCell.Episode)
	assert.ElementsMatch(t, []string{"alice", "bob"}, dec.MemCell.Participants)
	assert.Len(t, dec.MemCell.OriginalData, 2)
	assert.NotEmpty(t, dec.MemCell.EventID)
}

func TestBoundaryDetector_WaitSignal_ReturnsWait(t *testing.T) {
	chat := &fakeChat{responses: []string{`{"wait": true}`}}
	d := NewBoundaryDetector(chat, config.WindowConfig{}, obslog.NopLogger{}, obslog.NoopMetrics{})
	now := time.Now()
	dec := d.Decide(context.Background(), nil, []model.RawMessage{rawMsg("u1", "hmm", now)}, []string{"u1"}, "g1")
	assert.Equal(t, DecisionWait, dec.Kind)
	assert.True(t, dec.Status.ShouldWait)
}

func TestBoundaryDetector_TransientErrors_RetryThenWait(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}}
	cfg := config.WindowConfig{BoundaryMaxRetries: 5}
	d := NewBoundaryDetector(chat, cfg, obslog.NopLogger{}, obslog.NoopMetrics{})
	now := time.Now()
	dec := d.Decide(context.Background(), nil, []model.RawMessage{rawMsg("u1", "hmm", now)}, []string{"u1"}, "g1")
	assert.Equal(t, DecisionWait, dec.Kind)
	assert.Equal(t, 5, chat.calls)
}

func TestBoundaryDetector_RecoversAfterTransientError(t *testing.T) {
	chat := &fakeChat{
		responses: []string{"", "no_boundary"},
		errs:      []error{errors.New("timeout"), nil},
	}
	d := NewBoundaryDetector(chat, config.WindowConfig{}, obslog.NopLogger{}, obslog.NoopMetrics{})
	now := time.Now()
	dec := d.Decide(context.Background(), nil, []model.RawMessage{rawMsg("u1", "hmm", now)}, []string{"u1"}, "g1")
	assert.Equal(t, DecisionAccumulate, dec.Kind)
}

func TestBoundaryDetector_EmptyWindow_ReturnsWait(t *testing.T) {
	d := NewBoundaryDetector(&fakeChat{}, config.WindowConfig{}, obslog.NopLogger{}, obslog.NoopMetrics{})
	dec := d.Decide(context.Background(), nil, nil, nil, "g1")
	assert.Equal(t, DecisionWait, dec.Kind)
}

func TestBoundaryDetector_LongWindow_EnablesSmartMask(t *testing.T) {
	chat := &fakeChat{responses: []string{"no_boundary"}}
	cfg := config.WindowConfig{SmartMaskThreshold: 2}
	d := NewBoundaryDetector(chat, cfg, obslog.NopLogger{}, obslog.NoopMetrics{})
	now := time.Now()
	history := []model.RawMessage{rawMsg("u1", "a", now), rawMsg("u1", "b", now.Add(time.Second))}
	new := []model.RawMessage{rawMsg("u1", "c", now.Add(2 * time.Second))}

	d.Decide(context.Background(), history, new, []string{"u1"}, "g1")
	assert.Equal(t, 1, chat.calls)
	assert.Contains(t, chat.lastSystem, "The window is long")
}
