package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/capture"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	require.Equal(t, defaultUserAgent, cfg.UserAgent)
	require.Equal(t, defaultViewportWidth, cfg.ViewportWidth)
	require.Equal(t, defaultViewportHeight, cfg.ViewportHeight)
	require.Zero(t, cfg.HostQPS)

	cfg = Config{UserAgent: "snapvault-test", ViewportWidth: 800, ViewportHeight: 600, HostQPS: 2}.withDefaults()
	require.Equal(t, "snapvault-test", cfg.UserAgent)
	require.Equal(t, 800, cfg.ViewportWidth)
	require.Equal(t, 600, cfg.ViewportHeight)
}

func TestCaptureOnClosedSession(t *testing.T) {
	t.Parallel()

	s := &Session{closed: true}

	_, err := s.Capture(context.Background(), "https://example.com", time.Second)
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, s.Recycle(context.Background()), ErrSessionClosed)
	require.NoError(t, s.Close())
}

func TestCloseReleasesManagerSlotOnce(t *testing.T) {
	t.Parallel()

	released := 0
	s := &Session{release: func() { released++ }}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, released)
}

func TestSessionCaptureRendersPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><script>document.body.innerHTML = '<div id="late">late content</div>';</script></body></html>`)
	}))
	defer srv.Close()

	session, err := Launch(Config{}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer session.Close() //nolint:errcheck // teardown

	shot, err := session.Capture(context.Background(), srv.URL, 15*time.Second)
	if err != nil {
		t.Skipf("capture failed: %v", err)
	}
	require.True(t, bytes.HasPrefix(shot.Bytes, pngMagic), "expected PNG output")
	require.Equal(t, http.StatusOK, shot.StatusCode)
}

func TestSessionCaptureReportsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	session, err := Launch(Config{}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer session.Close() //nolint:errcheck // teardown

	_, err = session.Capture(context.Background(), srv.URL, 15*time.Second)
	require.Error(t, err)
	var statusErr *capture.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestManagerAllowsOneActiveSession(t *testing.T) {
	mgr := NewManager(Config{}, zap.NewNop())

	first, err := mgr.NewSession(context.Background())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}

	_, err = mgr.NewSession(context.Background())
	require.ErrorIs(t, err, ErrSessionActive)

	require.NoError(t, first.Close())

	second, err := mgr.NewSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
