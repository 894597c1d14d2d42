package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const networkIdleEvent = "networkIdle"

// lifecycleWatcher waits for the networkIdle lifecycle event of one specific
// navigation. Events arriving before the navigation's loader ID is known are
// buffered so a fast page cannot slip past the wait.
type lifecycleWatcher struct {
	mu       sync.Mutex
	loaderID cdp.LoaderID
	pending  map[cdp.LoaderID]bool
	once     sync.Once
	idle     chan struct{}
}

func newLifecycleWatcher() *lifecycleWatcher {
	return &lifecycleWatcher{
		pending: make(map[cdp.LoaderID]bool),
		idle:    make(chan struct{}),
	}
}

func (w *lifecycleWatcher) record(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != networkIdleEvent {
		return
	}
	w.mu.Lock()
	if w.loaderID == "" {
		w.pending[e.LoaderID] = true
		w.mu.Unlock()
		return
	}
	matched := e.LoaderID == w.loaderID
	w.mu.Unlock()
	if matched {
		w.signal()
	}
}

func (w *lifecycleWatcher) setLoader(id cdp.LoaderID) {
	w.mu.Lock()
	w.loaderID = id
	seen := w.pending[id]
	w.mu.Unlock()
	if seen {
		w.signal()
	}
}

func (w *lifecycleWatcher) signal() {
	w.once.Do(func() { close(w.idle) })
}

func (w *lifecycleWatcher) waitIdle() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		select {
		case <-w.idle:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait network idle: %w", ctx.Err())
		}
	}
}

// documentMeta records the response for the main document. Redirect hops do
// not emit document responses, so the first one seen is the final answer.
type documentMeta struct {
	once       sync.Once
	statusCode int
	finalURL   string
}

func newDocumentMeta() *documentMeta {
	return &documentMeta{}
}

func (m *documentMeta) record(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.once.Do(func() {
		m.statusCode = int(resp.Response.Status)
		m.finalURL = resp.Response.URL
	})
}

func (m *documentMeta) status() int {
	if m.statusCode == 0 {
		return http.StatusOK
	}
	return m.statusCode
}

func (m *documentMeta) documentURL(raw string) string {
	if m.finalURL == "" {
		return raw
	}
	return m.finalURL
}
