package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

func TestScriptsQuoteArguments(t *testing.T) {
	assert.Equal(t, `localStorage.setItem("pljsquality", "1080p")`, qualityScript("pljsquality", "1080p"))
	assert.Contains(t, qualityScript("k", `x"); alert(1); ("`), `"x\"); alert(1); (\""`)
	assert.Contains(t, listItemsScript("div.playlists-items ul"), `document.querySelectorAll("div.playlists-items ul")`)
}

func TestBrowserArgs(t *testing.T) {
	config := &domain.BrowserConfig{Headless: true}
	assert.Equal(t, "chrome", browserBinary(config))
	assert.Contains(t, browserArgs(config, "UA"), "--headless")
	assert.Contains(t, browserArgs(config, "UA"), "--user-agent=UA")

	config.ExecPath = "/usr/bin/chromium"
	assert.Equal(t, "/usr/bin/chromium", browserBinary(config))
}

func TestResolveRejectsInvalidLocator(t *testing.T) {
	s := &ChromeSession{config: &domain.BrowserConfig{}, logger: zap.NewNop()}

	_, err := s.Resolve(context.Background(), domain.Item{Locator: "not a url", Ordinal: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidLocator)
}

func TestPlayerHeaders(t *testing.T) {
	assert.Empty(t, playerHeaders(domain.Item{Locator: "https://csst.example.com/p/1"}))
	assert.Len(t, playerHeaders(domain.Item{Locator: "https://csst.example.com/p/1", Page: "https://site.example/show"}), 2)
}

// Runs against a real browser only when one is available
func TestChromeSession_EndToEnd(t *testing.T) {
	if os.Getenv("VGRAB_BROWSER_TESTS") == "" {
		t.Skip("set VGRAB_BROWSER_TESTS=1 to run browser tests")
	}
	if _, err := exec.LookPath("google-chrome"); err != nil {
		if _, err := exec.LookPath("chromium"); err != nil {
			t.Skip("no chrome binary found")
		}
	}

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/show", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><div class="playlists-items"><ul>
<li data-file="%[1]s/player/1">one</li>
<li>no locator</li>
<li data-file="%[1]s/player/2" data-title="Second">two</li>
</ul></div></body></html>`, server.URL)
	})
	var playerReferer string
	mux.HandleFunc("/player/", func(w http.ResponseWriter, r *http.Request) {
		playerReferer = r.Header.Get("Referer")
		fmt.Fprint(w, `<html><head><title>Player Title</title></head><body><script>
setTimeout(() => {
  const v = document.createElement('video');
  v.src = '/media/' + (localStorage.getItem('pljsquality') || 'none') + '.mp4';
  document.body.appendChild(v);
}, 100);
</script></body></html>`)
	})

	config := domain.DefaultConfig().Browser
	config.PageWait = 5 * time.Second
	config.ResolveTimeout = 10 * time.Second

	ctx := context.Background()
	session, err := NewChromeSession(ctx, &config, "720p", "", zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	items, err := session.ListItems(ctx, server.URL+"/show")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Second", items[1].Title)
	assert.Equal(t, server.URL+"/show", items[0].Page)

	stream, err := session.Resolve(ctx, items[0])
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/media/720p.mp4", stream.StreamURL)
	assert.Equal(t, items[0].Locator, stream.RefererURL)
	assert.Equal(t, "Player Title", stream.Title)
	assert.Equal(t, server.URL+"/show", playerReferer)
}
