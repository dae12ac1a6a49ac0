package fetcher

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status classifies the final outcome of a fetch.
type Status int

const (
	StatusOK Status = iota
	// StatusBlocked means the site refused us as a bot (403, 429 or a
	// CAPTCHA page). Retrying immediately only digs the hole deeper, so
	// blocked fetches are never retried.
	StatusBlocked
	// StatusTransient covers timeouts, connection errors, 5xx and 408.
	// Retried with exponential backoff up to the configured budget.
	StatusTransient
	// StatusPermanent covers the remaining 4xx responses (gone, bad URL).
	StatusPermanent
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBlocked:
		return "blocked"
	case StatusTransient:
		return "transient"
	case StatusPermanent:
		return "permanent"
	}
	return "unknown"
}

// Result carries the outcome of Fetch after all retries.
type Result struct {
	Status     Status
	Body       []byte
	HTTPStatus int
	Attempts   int
}

// Config controls timeouts and the retry budget.
type Config struct {
	Timeout    time.Duration
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // initial backoff, doubles per retry
	MaxBackoff time.Duration
}

const maxBodyBytes = 4 << 20

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.9,pt-BR;q=0.8",
	"pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
}

// captchaMarkers are lowercase substrings that identify an anti-bot
// interstitial served with HTTP 200.
var captchaMarkers = []string{
	"captcha",
	"automated access",
	"are you a robot",
	"enter the characters you see below",
}

// Fetcher retrieves product pages with bot-detection aware retry
// semantics and shared request pacing.
type Fetcher struct {
	client *http.Client
	pacer  *Pacer
	cfg    Config
}

// New builds a Fetcher. pacer may be nil to disable pacing (tests).
func New(cfg Config, pacer *Pacer) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pacer: pacer,
		cfg:   cfg,
	}
}

// Fetch retrieves rawURL, retrying transient failures with exponential
// backoff. Blocked and permanent outcomes return immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	res := Result{Status: StatusTransient}

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		res.Status = StatusPermanent
		return res
	}

	backoff := f.cfg.Backoff
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt + 1

		if f.pacer != nil {
			if err := f.pacer.Wait(ctx); err != nil {
				return res
			}
		}

		body, code, err := f.do(ctx, rawURL)
		res.HTTPStatus = code
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res
			}
			res.Status = StatusTransient
		case code == http.StatusForbidden || code == http.StatusTooManyRequests:
			res.Status = StatusBlocked
			return res
		case code >= 500 || code == http.StatusRequestTimeout:
			res.Status = StatusTransient
		case code >= 400:
			res.Status = StatusPermanent
			return res
		case looksBlocked(body):
			res.Status = StatusBlocked
			return res
		default:
			res.Status = StatusOK
			res.Body = body
			return res
		}

		if attempt == f.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return res
		}
		backoff *= 2
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}
	return res
}

// do performs one attempt with a freshly randomized request identity.
func (f *Fetcher) do(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))])

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func looksBlocked(body []byte) bool {
	// Only inspect the head of the page; interstitials are small.
	head := body
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	lower := strings.ToLower(string(head))
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
