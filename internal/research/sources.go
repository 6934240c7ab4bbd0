// Package research enriches source citations returned by the model. It is
// strictly best-effort: a source that cannot be fetched simply keeps its
// bare URL.
package research

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	fetchTimeout   = 5 * time.Second
	fetchParallel  = 4
	maxTitleLength = 120
)

var httpClient = &http.Client{Timeout: fetchTimeout}

// ResolveTitles fetches each URL and extracts its page title. URLs that fail
// to fetch or parse are absent from the result.
func ResolveTitles(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallel)
	for _, u := range urls {
		g.Go(func() error {
			title, err := fetchTitle(gctx, u)
			if err != nil || title == "" {
				return nil // best effort, never fail the group
			}
			mu.Lock()
			out[u] = title
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func fetchTitle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	title = strings.Join(strings.Fields(title), " ")
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title, nil
}
