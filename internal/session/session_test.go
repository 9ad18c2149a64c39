package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/scrape"
)

// fakeDriver records calls. It deliberately has no locking: the worker must
// serialize access, and the race detector will catch it if it does not.
type fakeDriver struct {
	calls      []string
	hasPage    bool
	url        string
	ensureErr  error
	closeCount int
	panicOnce  bool
}

func (f *fakeDriver) EnsurePage(url string) error {
	f.calls = append(f.calls, "ensure:"+url)
	if f.panicOnce {
		f.panicOnce = false
		panic("driver blew up")
	}
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.hasPage = true
	f.url = url
	return nil
}

func (f *fakeDriver) HasPage() bool { return f.hasPage }
func (f *fakeDriver) URL() string   { return f.url }

func (f *fakeDriver) Scrape(scrollSteps int) (scrape.Snapshot, error) {
	f.calls = append(f.calls, "scrape")
	return scrape.Snapshot{URL: f.url}, nil
}

func (f *fakeDriver) Execute(actions []action.Spec, query string, hooks action.Hooks) (action.Report, error) {
	f.calls = append(f.calls, "execute")
	return action.Report{Status: action.StatusSuccess}, nil
}

func (f *fakeDriver) Close() error {
	f.calls = append(f.calls, "close")
	f.closeCount++
	f.hasPage = false
	f.url = ""
	return nil
}

func newTestManager(drv *fakeDriver) *Manager {
	return newManager(func() driver { return drv }, zerolog.Nop())
}

func TestScrapeWithoutSessionFails(t *testing.T) {
	m := newTestManager(&fakeDriver{})
	defer m.Shutdown(context.Background())

	_, err := m.ScrapeCurrent(context.Background(), 0)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = m.Execute(context.Background(), nil, "", action.Hooks{})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSessionLifecycle(t *testing.T) {
	drv := &fakeDriver{}
	m := newTestManager(drv)
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	assert.False(t, m.HasSession(ctx))
	require.NoError(t, m.EnsurePage(ctx, "https://example.com"))
	assert.True(t, m.HasSession(ctx))
	assert.Equal(t, "https://example.com", m.CurrentURL(ctx))

	snap, err := m.ScrapeCurrent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", snap.URL)

	rep, err := m.Execute(ctx, []action.Spec{{Action: action.Click, Target: "#go"}}, "", action.Hooks{})
	require.NoError(t, err)
	assert.Equal(t, action.StatusSuccess, rep.Status)

	require.NoError(t, m.Close(ctx))
	assert.False(t, m.HasSession(ctx))
}

func TestCloseIsIdempotent(t *testing.T) {
	drv := &fakeDriver{}
	m := newTestManager(drv)
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	require.NoError(t, m.Close(ctx))
	require.NoError(t, m.Close(ctx))
}

func TestCommandErrorDoesNotKillWorker(t *testing.T) {
	drv := &fakeDriver{ensureErr: errors.New("navigation refused")}
	m := newTestManager(drv)
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	err := m.EnsurePage(ctx, "https://example.com")
	require.EqualError(t, err, "navigation refused")

	// the worker keeps processing after a failed command
	drv.ensureErr = nil
	require.NoError(t, m.EnsurePage(ctx, "https://example.com"))
}

func TestCommandPanicIsContained(t *testing.T) {
	drv := &fakeDriver{panicOnce: true}
	m := newTestManager(drv)
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	err := m.EnsurePage(ctx, "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	require.NoError(t, m.EnsurePage(ctx, "https://example.com"))
}

func TestCommandsAreSerialized(t *testing.T) {
	drv := &fakeDriver{}
	m := newTestManager(drv)
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	require.NoError(t, m.EnsurePage(ctx, "https://example.com"))

	var wg sync.WaitGroup
	const callers = 16
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ScrapeCurrent(ctx, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	scrapes := 0
	for _, call := range drv.calls {
		if call == "scrape" {
			scrapes++
		}
	}
	assert.Equal(t, callers, scrapes)
}

func TestSubmitAfterShutdown(t *testing.T) {
	m := newTestManager(&fakeDriver{})
	ctx := context.Background()
	m.Shutdown(ctx)

	err := m.EnsurePage(ctx, "https://example.com")
	require.ErrorIs(t, err, ErrManagerClosed)
}

func TestNormalizeForCompare(t *testing.T) {
	cases := []struct {
		a, b string
		same bool
	}{
		{"https://example.com/page", "https://example.com/page/", true},
		{"https://Example.COM/page", "https://example.com/page", true},
		{"https://example.com/page#frag", "https://example.com/page", true},
		{"https://example.com/page?q=1", "https://example.com/page", false},
		{"https://example.com/a", "https://example.com/b", false},
	}
	for _, tc := range cases {
		got := normalizeForCompare(tc.a) == normalizeForCompare(tc.b)
		assert.Equal(t, tc.same, got, "%s vs %s", tc.a, tc.b)
	}
	assert.Equal(t, "", normalizeForCompare("  "))
}
