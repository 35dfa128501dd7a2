package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveStage(pipeline, stage, outcome string, _ time.Duration) {
	o.mu.Lock()
	o.calls = append(o.calls, pipeline+"/"+stage+"/"+outcome)
	o.mu.Unlock()
}

func upper() Stage[string, string] {
	return New("upper", func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
}

func length() Stage[string, int] {
	return New("length", func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
}

func TestRun_Then(t *testing.T) {
	obs := &recordingObserver{}
	p := NewPipeline("demo", WithObserver(obs))

	out, tr, err := Run(context.Background(), p, Then(upper(), length()), "ocean")
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "upper", entries[0].Stage)
	assert.Equal(t, "length", entries[1].Stage)
	assert.Equal(t, []string{"demo/upper/ok", "demo/length/ok"}, obs.calls)
	assert.Equal(t, "upper>length", Then(upper(), length()).Name())
}

func TestRun_HardErrorShortCircuits(t *testing.T) {
	boom := errors.New("upstream exploded")
	var secondRan bool

	failing := New("compose", func(context.Context, string) (string, error) { return "", boom })
	second := New("refine", func(_ context.Context, s string) (string, error) {
		secondRan = true
		return s, nil
	})

	_, tr, err := Run(context.Background(), NewPipeline("interpolate"), Then(failing, second), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "compose", FailedStage(err))
	assert.False(t, secondRan)
	assert.Equal(t, OutcomeError, tr.Outcome("compose"))
	assert.Empty(t, tr.Outcome("refine"))
}

func TestRun_SoftFailureContinues(t *testing.T) {
	extract := New("extract", func(context.Context, string) (map[string]int, error) {
		return map[string]int{}, Soft(errors.New("unparseable completion"))
	})
	count := New("count", func(_ context.Context, m map[string]int) (int, error) {
		return len(m), nil
	})

	out, tr, err := Run(context.Background(), NewPipeline("analyze"), Then(extract, count), "p")
	require.NoError(t, err)
	assert.Equal(t, 0, out)

	soft := tr.SoftFailures()
	require.Len(t, soft, 1)
	assert.Equal(t, "extract", soft[0].Stage)
	assert.Contains(t, soft[0].Error, "unparseable")
	assert.Equal(t, OutcomeOK, tr.Outcome("count"))
}

func TestRun_NestedStageErrorNotDoubleWrapped(t *testing.T) {
	inner := New("inner", func(context.Context, int) (int, error) {
		return 0, &StageError{Stage: "inner-call", Err: errors.New("x")}
	})
	_, _, err := Run(context.Background(), NewPipeline("p"), inner, 1)
	assert.Equal(t, "inner-call", FailedStage(err))
}

func TestRun_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p := NewPipeline("demo", WithTracer(tp.Tracer("test")))
	_, _, err := Run(context.Background(), p, Then(upper(), length()), "a")
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"demo", "demo.upper", "demo.length"}, names)
}

func TestStageRunOutsidePipeline(t *testing.T) {
	out, err := Then(upper(), length()).Run(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestStageRunOutsidePipeline_SoftFailureContinues(t *testing.T) {
	extract := New("extract", func(context.Context, string) (map[string]int, error) {
		return map[string]int{}, Soft(errors.New("unparseable completion"))
	})
	count := New("count", func(_ context.Context, m map[string]int) (int, error) {
		return len(m) + 1, nil
	})

	out, err := Then(extract, count).Run(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 1, out)

	hard := New("hard", func(context.Context, string) (map[string]int, error) {
		return nil, errors.New("boom")
	})
	_, err = Then(hard, count).Run(context.Background(), "p")
	assert.EqualError(t, err, "boom")
}

func TestSoft(t *testing.T) {
	assert.Nil(t, Soft(nil))
	base := errors.New("x")
	s := Soft(base)
	assert.True(t, IsSoft(s))
	assert.ErrorIs(t, s, base)
	assert.False(t, IsSoft(base))
}

func TestObservers_FanOut(t *testing.T) {
	assert.Nil(t, Observers())
	assert.Nil(t, Observers(nil, nil))

	a, b := &recordingObserver{}, &recordingObserver{}
	assert.Same(t, a, Observers(nil, a))

	p := NewPipeline("fan", WithObserver(Observers(a, nil, b)))
	_, _, err := Run(context.Background(), p, upper(), "x")
	require.NoError(t, err)

	assert.Equal(t, []string{"fan/upper/ok"}, a.calls)
	assert.Equal(t, a.calls, b.calls)
}
