package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	consentPage = `<html><body>
<script>var CookieInformation = {submitAllCategories: function () { window.cookiesAccepted = true; }};</script>
<a class="Btn -accept" href="#" onclick="this.style.display='none'; return false;">Accept</a>
</body></html>`
	throwingConsentPage = `<html><body>
<script>var CookieInformation = {submitAllCategories: function () { throw new Error("consent backend down"); }};</script>
</body></html>`
	plainPage       = `<html><body><p>Welcome</p></body></html>`
	neverReadyPage  = `<html><body><h2>Top 10 Positions</h2><p>Loading holdings...</p></body></html>`
	lateTablePage   = `<html><body><h2>Top 10 Positions</h2><script>setTimeout(() => { document.body.insertAdjacentHTML("beforeend", "<table><tr><td>NVIDIA</td><td>8.1</td></tr></table>"); }, 300);</script></body></html>`
	tableReadyCheck = `document.querySelector("table") !== null`
)

// requireChrome skips the test when no Chrome binary is installed
func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("chrome not installed")
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/consent": consentPage,
		"/throws":  throwingConsentPage,
		"/plain":   plainPage,
		"/never":   neverReadyPage,
		"/late":    lateTablePage,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openSession(t *testing.T, landingURL string) *Session {
	t.Helper()
	requireChrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	s, err := Open(ctx, Options{
		Headless:     true,
		ReadyTimeout: time.Second,
		PollInterval: 50 * time.Millisecond,
		Consent: ConsentOptions{
			LandingURL:    landingURL,
			CookieAPI:     "CookieInformation.submitAllCategories",
			TermsSelector: "a.Btn.-accept",
			TermsTimeout:  500 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEstablish(t *testing.T) {
	srv := newSite(t)

	tests := []struct {
		path    string
		cookies Outcome
		terms   Outcome
	}{
		{"/consent", Performed, Performed},
		{"/plain", NotApplicable, NotApplicable},
		{"/throws", Failed, NotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s := openSession(t, srv.URL+tt.path)

			report, err := s.Establish(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.cookies, report.Cookies.Outcome, "cookies: %v", report.Cookies.Err)
			require.Equal(t, tt.terms, report.Terms.Outcome, "terms: %v", report.Terms.Err)
			if tt.cookies == Failed {
				require.Error(t, report.Cookies.Err)
			}
		})
	}
}

func TestEstablishWithoutLandingPage(t *testing.T) {
	s := openSession(t, "")

	report, err := s.Establish(context.Background())
	require.NoError(t, err)
	for _, step := range report.Steps() {
		require.Equal(t, NotApplicable, step.Outcome, step.Step)
	}
}

func TestEstablishUnreachableLandingPage(t *testing.T) {
	srv := newSite(t)
	url := srv.URL + "/plain"
	srv.Close()

	s := openSession(t, url)
	_, err := s.Establish(context.Background())
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	srv := newSite(t)
	s := openSession(t, "")

	t.Run("ready", func(t *testing.T) {
		markup, err := s.Load(context.Background(), srv.URL+"/late", tableReadyCheck)
		require.NoError(t, err)
		require.Contains(t, markup, "NVIDIA")
	})

	t.Run("not ready", func(t *testing.T) {
		markup, err := s.Load(context.Background(), srv.URL+"/never", tableReadyCheck)
		require.ErrorIs(t, err, ErrNotReady)
		require.Contains(t, markup, "Loading holdings...")
	})

	t.Run("no wait", func(t *testing.T) {
		markup, err := s.Load(context.Background(), srv.URL+"/plain", "")
		require.NoError(t, err)
		require.Contains(t, markup, "Welcome")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Load(ctx, srv.URL+"/plain", "")
		require.Error(t, err)
	})
}
