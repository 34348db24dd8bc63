package chromedpsession

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxTabs: -1}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{SlowMo: -time.Second}, nil, nil)
	require.Error(t, err)

	s, err := New(Config{MaxTabs: 2}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.Equal(t, 2, cap(s.tabs))
	require.Equal(t, defaultNavigationTimeout, s.cfg.NavigationTimeout)
}

func TestNavigateAfterCloseIsFatal(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Headless: true}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Navigate(context.Background(), "https://www.linkedin.com/jobs")
	require.True(t, scraper.IsFatal(err))
	require.ErrorIs(t, err, scraper.ErrSessionClosed)
}

func TestParseSwitch(t *testing.T) {
	t.Parallel()

	name, value, ok := parseSwitch("--lang=en-GB")
	require.True(t, ok)
	require.Equal(t, "lang", name)
	require.Equal(t, "en-GB", value)

	name, value, ok = parseSwitch("--no-sandbox")
	require.True(t, ok)
	require.Equal(t, "no-sandbox", name)
	require.Equal(t, true, value)

	_, _, ok = parseSwitch("  --  ")
	require.False(t, ok)
	_, _, ok = parseSwitch("--=x")
	require.False(t, ok)
}

func TestAllocatorOptionsIncludeArgs(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(Config{}))
	opts := allocatorOptions(Config{Headless: true, Args: []string{"--lang=en-GB", "", "--mute-audio"}, ExecPath: "/usr/bin/chromium"})
	require.Len(t, opts, base+3)
}

func TestResponseMetaSnapshot(t *testing.T) {
	t.Parallel()

	meta := &responseMeta{}
	status, url := meta.snapshot("https://req", "")
	require.Equal(t, 200, status)
	require.Equal(t, "https://req", url)

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://img"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 429, URL: "https://www.linkedin.com/jobs-guest"},
	})
	status, url = meta.snapshot("https://req", "https://final")
	require.Equal(t, 429, status)
	require.Equal(t, "https://final", url)
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2xx", statusClass(200))
	require.Equal(t, "3xx", statusClass(301))
	require.Equal(t, "4xx", statusClass(404))
	require.Equal(t, "5xx", statusClass(503))
}

func TestSlowMoHonorsContext(t *testing.T) {
	t.Parallel()

	s := &Session{cfg: Config{SlowMo: time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.slowMo(ctx), context.Canceled)

	s.cfg.SlowMo = 0
	require.NoError(t, s.slowMo(ctx))
}
