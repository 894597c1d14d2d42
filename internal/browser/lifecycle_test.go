package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"
)

func TestLifecycleWatcherSignalsAfterLoaderKnown(t *testing.T) {
	t.Parallel()

	w := newLifecycleWatcher()
	w.setLoader(cdp.LoaderID("L1"))
	w.record(&page.EventLifecycleEvent{Name: networkIdleEvent, LoaderID: cdp.LoaderID("L1")})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.waitIdle()(ctx))
}

func TestLifecycleWatcherBuffersEarlyEvent(t *testing.T) {
	t.Parallel()

	w := newLifecycleWatcher()
	w.record(&page.EventLifecycleEvent{Name: networkIdleEvent, LoaderID: cdp.LoaderID("L1")})
	w.setLoader(cdp.LoaderID("L1"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.waitIdle()(ctx))
}

func TestLifecycleWatcherIgnoresOtherLoaders(t *testing.T) {
	t.Parallel()

	w := newLifecycleWatcher()
	w.setLoader(cdp.LoaderID("L1"))
	w.record(&page.EventLifecycleEvent{Name: networkIdleEvent, LoaderID: cdp.LoaderID("blank")})
	w.record(&page.EventLifecycleEvent{Name: "load", LoaderID: cdp.LoaderID("L1")})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.waitIdle()(ctx)
	require.Error(t, err)
	require.ErrorContains(t, err, "wait network idle")
}

func TestDocumentMetaRecordsFirstDocumentResponse(t *testing.T) {
	t.Parallel()

	m := newDocumentMeta()
	m.record(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/logo.png"},
	})
	m.record(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://example.com/missing"},
	})
	m.record(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/other"},
	})

	require.Equal(t, 404, m.status())
	require.Equal(t, "https://example.com/missing", m.documentURL("https://example.com"))
}

func TestDocumentMetaFallbacks(t *testing.T) {
	t.Parallel()

	m := newDocumentMeta()
	require.Equal(t, 200, m.status())
	require.Equal(t, "https://example.com", m.documentURL("https://example.com"))
}

func TestForwardCancelPropagates(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	task, cancelTask := context.WithCancel(context.Background())
	stop := forwardCancel(parent, cancelTask)
	defer stop()

	cancelParent()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled")
	}
}
