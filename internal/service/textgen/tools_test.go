package textgen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"companion/internal/models"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

type fakeSearch struct {
	result string
	err    error
	calls  int
	args   string
}

func (f *fakeSearch) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "fake_search"}, nil
}

func (f *fakeSearch) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	f.calls++
	f.args = args
	return f.result, f.err
}

func newTestReadURL(google, duck tool.InvokableTool) *readURLTool {
	return &readURLTool{
		google:     google,
		duck:       duck,
		httpClient: &http.Client{Timeout: time.Second},
		limiter:    newToolRateLimiter(2, time.Minute),
	}
}

func TestReadURLFetchesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != readURLUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("<html>page body</html>"))
	}))
	defer srv.Close()

	search := &fakeSearch{result: "search"}
	r := newTestReadURL(search, nil)
	out, err := r.run(context.Background(), &readURLParams{Query: srv.URL})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "page body") {
		t.Fatalf("unexpected content %q", out)
	}
	if search.calls != 0 {
		t.Fatalf("search should not run when the page loads")
	}
}

func TestReadURLFallsBackToSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	google := &fakeSearch{err: errors.New("quota")}
	duck := &fakeSearch{result: "ddg results"}
	r := newTestReadURL(google, duck)
	out, err := r.run(context.Background(), &readURLParams{Query: srv.URL})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "ddg results" {
		t.Fatalf("unexpected output %q", out)
	}
	if google.calls != 1 || duck.calls != 1 {
		t.Fatalf("expected both providers tried, got google=%d duck=%d", google.calls, duck.calls)
	}
	if !strings.Contains(duck.args, `"query"`) {
		t.Fatalf("unexpected search payload %s", duck.args)
	}
}

func TestReadURLPlainQueryGoesToSearch(t *testing.T) {
	google := &fakeSearch{result: "google results"}
	r := newTestReadURL(google, nil)
	out, err := r.run(context.Background(), &readURLParams{Query: "weather in Paris"})
	if err != nil || out != "google results" {
		t.Fatalf("unexpected result %q err=%v", out, err)
	}
}

func TestReadURLValidationAndFailures(t *testing.T) {
	r := newTestReadURL(&fakeSearch{err: errors.New("down")}, nil)
	if _, err := r.run(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil params")
	}
	if _, err := r.run(context.Background(), &readURLParams{Query: "   "}); err == nil {
		t.Fatalf("expected error for empty query")
	}
	if _, err := r.run(context.Background(), &readURLParams{Query: "anything"}); err == nil {
		t.Fatalf("expected error when every provider fails")
	}
}

func TestReadURLRateLimitedPerScope(t *testing.T) {
	r := newTestReadURL(&fakeSearch{result: "ok"}, nil)
	ctx := WithToolScope(context.Background(), models.Scope("alice"))
	for i := 0; i < 2; i++ {
		if _, err := r.run(ctx, &readURLParams{Query: "q"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := r.run(ctx, &readURLParams{Query: "q"}); err == nil {
		t.Fatalf("expected rate limit error")
	}
	other := WithToolScope(context.Background(), models.Scope("bob"))
	if _, err := r.run(other, &readURLParams{Query: "q"}); err != nil {
		t.Fatalf("other scope should not be limited: %v", err)
	}
}

func TestToolRateLimiterWindowExpires(t *testing.T) {
	l := newToolRateLimiter(1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	if !l.Allow("k") {
		t.Fatalf("first hit should pass")
	}
	if l.Allow("k") {
		t.Fatalf("second hit inside window should fail")
	}
	now = now.Add(61 * time.Second)
	if !l.Allow("k") {
		t.Fatalf("hit after window should pass")
	}
}

func TestInitReadURLWithoutProviders(t *testing.T) {
	if InitReadURL(context.Background(), nil, nil) != nil {
		t.Fatalf("expected nil tool without search providers")
	}
}

func TestLooksLikeURL(t *testing.T) {
	for input, want := range map[string]bool{
		"https://example.com": true,
		"HTTP://example.com":  true,
		"ftp://example.com":   false,
		"example.com":         false,
	} {
		if got := looksLikeURL(input); got != want {
			t.Fatalf("looksLikeURL(%q) = %v, want %v", input, got, want)
		}
	}
}
