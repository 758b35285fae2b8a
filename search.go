package concursoprep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	// SearchCacheTTL is how long a cached search stays fresh
	SearchCacheTTL = 24 * time.Hour

	defaultSearchBudget      = 6000
	defaultSearchConcurrency = 4
	duckDuckGoEndpoint       = "https://html.duckduckgo.com/html/"
)

// SearchResult is one hit returned by a search provider
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher runs a text query against a web-search provider
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchCache stores concatenated search text by key
type SearchCache interface {
	GetSearch(ctx context.Context, key string) (content string, createdAt time.Time, ok bool, err error)
	PutSearch(ctx context.Context, key, content string) error
}

// DuckDuckGo scrapes result snippets from DuckDuckGo's HTML endpoint
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo searcher. An empty endpoint means the
// public one.
func NewDuckDuckGo(endpoint string, timeout time.Duration) *DuckDuckGo {
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	return &DuckDuckGo{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Search fetches the result page for query and extracts up to maxResults hits
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	u := d.endpoint + "?" + url.Values{"q": {query}, "kl": {"br-pt"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; concursoprep/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}
	return extractResults(doc, maxResults), nil
}

// extractResults walks the page collecting result__a titles and
// result__snippet bodies in document order
func extractResults(doc *html.Node, maxResults int) []SearchResult {
	var results []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, SearchResult{Title: nodeText(n), URL: attr(n, "href")})
				return
			case hasClass(n, "result__snippet"):
				if len(results) == 0 || results[len(results)-1].Snippet != "" {
					results = append(results, SearchResult{})
				}
				results[len(results)-1].Snippet = nodeText(n)
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	out := results[:0]
	for _, r := range results {
		if r.Snippet != "" {
			out = append(out, r)
		}
	}
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// CachedSearcher runs several queries through a cache. Search never fails;
// a query that errors contributes nothing.
type CachedSearcher struct {
	searcher    Searcher
	cache       SearchCache
	ttl         time.Duration
	totalBudget int
	concurrency int
	now         func() time.Time
}

// NewCachedSearcher creates a cached searcher. cache may be nil.
func NewCachedSearcher(searcher Searcher, cache SearchCache) *CachedSearcher {
	return &CachedSearcher{
		searcher:    searcher,
		cache:       cache,
		ttl:         SearchCacheTTL,
		totalBudget: defaultSearchBudget,
		concurrency: defaultSearchConcurrency,
		now:         time.Now,
	}
}

// SetTotalBudget changes the character budget of the aggregate text
func (cs *CachedSearcher) SetTotalBudget(n int) {
	if n > 0 {
		cs.totalBudget = n
	}
}

// CacheKey derives the cache key of a query inside a namespace
func CacheKey(namespace, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

type searchSlot struct {
	query   string
	key     string
	content string
	cached  bool
	fetched bool
}

// Search returns the concatenated snippets of all queries. Cache reads and
// writes happen on the calling goroutine; only provider calls fan out.
func (cs *CachedSearcher) Search(ctx context.Context, queries []string, maxResults, maxChars int, namespace string, logger *LLMLogger) string {
	slots := make([]*searchSlot, 0, len(queries))
	seen := make(map[string]bool)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := CacheKey(namespace, q)
		if seen[key] {
			continue
		}
		seen[key] = true
		slots = append(slots, &searchSlot{query: q, key: key})
	}

	var misses []*searchSlot
	for _, s := range slots {
		if content, ok := cs.lookup(ctx, s.key); ok {
			s.content = content
			s.cached = true
			continue
		}
		misses = append(misses, s)
	}

	if cs.searcher != nil && len(misses) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cs.concurrency)
		for _, s := range misses {
			s := s
			g.Go(func() error {
				results, err := cs.searcher.Search(gctx, s.query, maxResults)
				if err != nil {
					log.Printf("Search for %q failed: %v", s.query, err)
					return nil
				}
				s.content = truncateRunes(joinSnippets(results), maxChars)
				s.fetched = true
				return nil
			})
		}
		g.Wait()
	}

	var sb strings.Builder
	for _, s := range slots {
		if s.fetched && s.content != "" && cs.cache != nil {
			if err := cs.cache.PutSearch(ctx, s.key, s.content); err != nil {
				log.Printf("Failed to cache search %q: %v", s.query, err)
			}
		}
		logger.LogSearch(s.query, s.cached, len(s.content))
		if s.content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s.content)
	}
	return truncateRunes(sb.String(), cs.totalBudget)
}

func (cs *CachedSearcher) lookup(ctx context.Context, key string) (string, bool) {
	if cs.cache == nil {
		return "", false
	}
	content, createdAt, ok, err := cs.cache.GetSearch(ctx, key)
	if err != nil {
		log.Printf("Failed to read search cache: %v", err)
		return "", false
	}
	if !ok || cs.now().Sub(createdAt) >= cs.ttl {
		return "", false
	}
	return content, true
}

func joinSnippets(results []SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if s := strings.TrimSpace(r.Snippet); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// searchQueries builds the grounding queries for a request
func searchQueries(req GenerationRequest, subject string) []string {
	topic := req.Topic
	if isRandomChoice(topic) {
		topic = ""
	}
	var queries []string
	if req.Origin == OriginReal {
		queries = []string{
			fmt.Sprintf("questões %s %s %s prova", req.Board, req.Role, subject),
			fmt.Sprintf("gabarito %s %s %s %s", req.Board, req.Role, subject, topic),
		}
	} else {
		queries = []string{
			fmt.Sprintf("%s %s jurisprudência STF STJ", subject, topic),
			fmt.Sprintf("%s estilo questões %s %s", req.Board, subject, topic),
		}
	}
	for i, q := range queries {
		queries[i] = strings.Join(strings.Fields(q), " ")
	}
	return queries
}
