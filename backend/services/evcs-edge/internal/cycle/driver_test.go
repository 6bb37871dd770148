package cycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(event string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, event)
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

type tracingHandler struct {
	name       string
	trace      *trace
	panicWrite bool
}

func (h *tracingHandler) OnAfterProcessImage(context.Context) {
	h.trace.add(fmt.Sprintf("%s:read", h.name))
}

func (h *tracingHandler) OnExecuteWrite(context.Context) {
	if h.panicWrite {
		panic("write failed")
	}
	h.trace.add(fmt.Sprintf("%s:write", h.name))
}

func TestRunOnceReadsBeforeWrites(t *testing.T) {
	tr := &trace{}
	d := NewDriver(time.Second, nil)
	d.Register(&tracingHandler{name: "a", trace: tr})
	d.Register(&tracingHandler{name: "b", trace: tr})

	d.RunOnce(context.Background())

	assert.Equal(t, []string{"a:read", "b:read", "a:write", "b:write"}, tr.snapshot())
}

func TestRunOnceSurvivesPanickingHandler(t *testing.T) {
	tr := &trace{}
	d := NewDriver(time.Second, nil)
	d.Register(&tracingHandler{name: "a", trace: tr, panicWrite: true})
	d.Register(&tracingHandler{name: "b", trace: tr})

	assert.NotPanics(t, func() { d.RunOnce(context.Background()) })
	assert.Equal(t, []string{"a:read", "b:read", "b:write"}, tr.snapshot())
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := &trace{}
	d := NewDriver(10*time.Millisecond, nil)
	d.Register(&tracingHandler{name: "a", trace: tr})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(tr.snapshot()) >= 4 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}
}
