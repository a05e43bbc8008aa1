package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/pkgreuse/pkg/observability"
)

// Spinner provides a simple progress indicator with context cancellation support.
type Spinner struct {
	w       io.Writer
	message string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
	frames  []string
	mu      sync.Mutex
	once    sync.Once
}

// newSpinnerWithContext creates a spinner drawing on w that stops when ctx is
// cancelled.
func newSpinnerWithContext(ctx context.Context, w io.Writer, message string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		w:       w,
		message: message,
		ctx:     spinnerCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-s.done:
				return
			case <-ticker.C:
				frame := s.frames[i%len(s.frames)]
				s.mu.Lock()
				fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.message))
				s.mu.Unlock()
				i++
			}
		}
	}()
}

// Stop stops the spinner and clears the line. It must follow Start.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
	s.cancel()
	s.clearLine()
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
}

// =============================================================================
// Pipeline progress
// =============================================================================

// spinnerHooks animates a spinner on stderr while the pass discovers
// candidates. The pipeline logs its own completion lines, so the spinner only
// covers the silent stretches.
type spinnerHooks struct {
	observability.NoopPipelineHooks

	ctx     context.Context
	w       io.Writer
	mu      sync.Mutex
	spinner *Spinner
}

func newSpinnerHooks(ctx context.Context, w io.Writer) *spinnerHooks {
	return &spinnerHooks{ctx: ctx, w: w}
}

func (h *spinnerHooks) OnCrawlStart(_ context.Context, roots []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spinner = newSpinnerWithContext(h.ctx, h.w, fmt.Sprintf("Scanning %s for installed packages", strings.Join(roots, ", ")))
	h.spinner.Start()
}

func (h *spinnerHooks) OnCrawlComplete(context.Context, int, time.Duration, error) {
	h.stop()
}

func (h *spinnerHooks) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.spinner != nil {
		h.spinner.Stop()
		h.spinner = nil
	}
}
