package textgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"companion/internal/logger"
	"companion/internal/models"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const (
	ReadURLHTTPTimeout = 10 * time.Second
	ReadURLRateLimit   = 5
	ReadURLRateWindow  = time.Minute
	maxBodySize        = 512 * 1024
	readURLUserAgent   = "Companion-ReadURL/1.0"
)

type toolScopeContextKey struct{}

// WithToolScope tags ctx so tool calls are rate limited per conversation scope.
func WithToolScope(ctx context.Context, scope models.Scope) context.Context {
	if scope == "" {
		return ctx
	}
	return context.WithValue(ctx, toolScopeContextKey{}, scope)
}

func toolScopeFromContext(ctx context.Context) (models.Scope, bool) {
	scope, ok := ctx.Value(toolScopeContextKey{}).(models.Scope)
	return scope, ok
}

type toolRateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	hits   map[string][]time.Time
	now    func() time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time), now: time.Now}
}

func (l *toolRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.hits[key]
	cutoff := now.Add(-l.window)
	idx := 0
	for _, t := range queue {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	queue = queue[idx:]
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false
	}
	l.hits[key] = append(queue, now)
	return true
}

// InitTools builds the tool set for the eino agent. It is empty when no search provider can start.
func InitTools(ctx context.Context) []tool.BaseTool {
	if rt := InitReadURL(ctx, InitGooglesearch(ctx), InitDDGsearch(ctx)); rt != nil {
		return []tool.BaseTool{rt}
	}
	return nil
}

// InitReadURL returns a tool that fetches a URL and falls back to web search.
func InitReadURL(ctx context.Context, google, duck tool.InvokableTool) tool.InvokableTool {
	if google == nil && duck == nil {
		logger.FromContext(ctx).Warn("read_url tool disabled: no search providers available")
		return nil
	}
	r := &readURLTool{
		google:     google,
		duck:       duck,
		httpClient: &http.Client{Timeout: ReadURLHTTPTimeout},
		limiter:    newToolRateLimiter(ReadURLRateLimit, ReadURLRateWindow),
	}
	info := &schema.ToolInfo{
		Name: "read_url",
		Desc: "Read the content of a web page the user mentioned; " +
			"falls back to a web search when the page cannot be fetched or the input is not a URL.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "URL to read, or a natural language query",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, r.run)
}

type readURLTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	limiter    *toolRateLimiter
}

type readURLParams struct {
	Query string `json:"query"`
}

func (r *readURLTool) run(ctx context.Context, params *readURLParams) (string, error) {
	if params == nil {
		return "", errors.New("missing parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	if scope, ok := toolScopeFromContext(ctx); ok && r.limiter != nil {
		if !r.limiter.Allow(string(scope)) {
			return "", errors.New("read_url rate limit exceeded, please retry in a minute")
		}
	}
	log := logger.FromContext(ctx)

	if looksLikeURL(query) {
		content, err := r.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		log.Warn("read_url fetch failed", "url", query, "error", err)
	}

	payload, err := sonic.MarshalString(readURLParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	if r.google != nil {
		result, err := r.google.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		log.Warn("google search failed", "error", err)
	}
	if r.duck != nil {
		result, err := r.duck.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		log.Warn("duckduckgo search failed", "error", err)
	}
	return "", errors.New("no search provider succeeded")
}

func (r *readURLTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", readURLUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// InitDDGsearch returns nil when the DuckDuckGo tool cannot be created.
func InitDDGsearch(ctx context.Context) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("duckduckgo search disabled", "error", err)
		return nil
	}
	return duckTool
}

// InitGooglesearch needs GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID.
func InitGooglesearch(ctx context.Context) tool.InvokableTool {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		logger.FromContext(ctx).Info("google search disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("google search disabled", "error", err)
		return nil
	}
	return googleTool
}
