// Package titles resolves page titles in the background for addresses
// whose host-reported title is missing or a junk placeholder.
package titles

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/applog"
)

// Result is one resolved title, delivered on the Results channel.
type Result struct {
	Address string
	Title   string
}

// Resolver fetches titles with a fixed pool of workers. Requests and
// results are both best-effort: a full queue drops rather than blocks.
type Resolver struct {
	requests chan string
	Results  chan Result
	client   *http.Client
}

// NewResolver starts a resolver with the given number of workers.
func NewResolver(workers int) *Resolver {
	if workers <= 0 {
		workers = 4
	}
	r := &Resolver{
		requests: make(chan string, 256),
		Results:  make(chan Result, 64),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for i := 0; i < workers; i++ {
		go r.worker()
	}
	return r
}

// Enqueue schedules a title fetch. Returns false if the queue is full
// or the address is not fetchable.
func (r *Resolver) Enqueue(address string) bool {
	if addr.IsBrowserInternal(address) {
		return false
	}
	select {
	case r.requests <- address:
		return true
	default:
		return false
	}
}

// Close stops accepting requests. Workers drain and exit.
func (r *Resolver) Close() {
	close(r.requests)
}

func (r *Resolver) worker() {
	for address := range r.requests {
		title, err := r.fetchTitle(address)
		if err != nil {
			applog.Info("titles.skip", "address", addr.Truncate(address, 120), "reason", err.Error())
			continue
		}
		if title == "" {
			continue
		}
		select {
		case r.Results <- Result{Address: address, Title: title}:
		default:
			// Engine not draining; a lost title is harmless.
		}
	}
}

// fetchTitle fetches a URL and extracts the page title.
func (r *Resolver) fetchTitle(url string) (string, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, nil)
	if err != nil {
		return "", fmt.Errorf("extract title from %s: %w", url, err)
	}
	return strings.TrimSpace(article.Title), nil
}

// isPlaceholder reports whether a host title carries no information.
func isPlaceholder(t string) bool {
	switch t {
	case "", "new tab", "untitled", "loading...":
		return true
	}
	return false
}

// ShouldResolve reports whether a host-reported title is worth
// replacing with a fetched one.
func ShouldResolve(title, address string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if isPlaceholder(t) {
		return true
	}
	// Hosts often report the bare address while a page loads.
	if t == strings.ToLower(address) {
		return true
	}
	if d := addr.Domain(address); d != "" && t == d {
		return true
	}
	return false
}
