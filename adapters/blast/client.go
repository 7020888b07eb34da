// Package blast submits nucleotide queries to the NCBI BLAST URL API and
// streams back ranked hits.
package blast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"rnadiff/domain/core"
	"rnadiff/domain/search"
	"rnadiff/internal"
)

// DefaultBaseURL is the public NCBI endpoint
const DefaultBaseURL = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"

// Config holds endpoint and timing settings
type Config struct {
	BaseURL      string        `json:"base_url"`
	Timeout      time.Duration `json:"timeout"`       // whole search, submit to last byte
	RequestLimit time.Duration `json:"request_limit"` // a single HTTP round trip
	PollInterval time.Duration `json:"poll_interval"`
	Tool         string        `json:"tool"`
	Email        string        `json:"email"`
}

// DefaultConfig polls no faster than NCBI usage guidelines allow
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Timeout:      10 * time.Minute,
		RequestLimit: 60 * time.Second,
		PollInterval: 10 * time.Second,
		Tool:         "rnadiff",
	}
}

var (
	ridPattern    = regexp.MustCompile(`RID = (\S+)`)
	rtoePattern   = regexp.MustCompile(`RTOE = (\d+)`)
	statusPattern = regexp.MustCompile(`Status=(\w+)`)
	hitsPattern   = regexp.MustCompile(`ThereAreHits=(\w+)`)
)

// Client runs one search at a time against the URL API. It does not retry;
// every failure is returned wrapped in core.ErrSearchUnavailable.
type Client struct {
	cfg        Config
	httpClient *http.Client
	inFlight   *semaphore.Weighted
	logger     *internal.Logger
}

// NewClient creates a client; a nil logger discards output
func NewClient(cfg Config, logger *internal.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = def.RequestLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestLimit},
		inFlight:   semaphore.NewWeighted(1),
		logger:     logger,
	}
}

// Search submits the query, waits for the job and returns a scanner over
// the hits. A second call while one is running fails with
// core.ErrSearchInFlight.
func (c *Client) Search(ctx context.Context, q search.Query, params search.Params) (*HitScanner, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !c.inFlight.TryAcquire(1) {
		return nil, core.ErrSearchInFlight
	}
	defer c.inFlight.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rid, rtoe, err := c.submit(ctx, q, params)
	if err != nil {
		return nil, err
	}
	c.logger.Info("[BlastClient] submitted %s (%d bp) as RID %s, estimated %v", q.ID, len(q.Sequence), rid, rtoe)

	hasHits, err := c.wait(ctx, rid, rtoe)
	if err != nil {
		return nil, err
	}
	if !hasHits {
		c.logger.Info("[BlastClient] RID %s finished with no hits in %v", rid, time.Since(start).Round(time.Second))
		return emptyScanner(rid), nil
	}

	body, err := c.get(ctx, "fetch", url.Values{
		"CMD":         {"Get"},
		"RID":         {rid},
		"FORMAT_TYPE": {"JSON2_S"},
	})
	if err != nil {
		return nil, err
	}
	scanner, err := newHitScanner(rid, body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("[BlastClient] RID %s returned %d hits in %v", rid, scanner.Len(), time.Since(start).Round(time.Second))
	return scanner, nil
}

// SearchHits runs Search and drains at most limit hits; limit <= 0 keeps
// every hit
func (c *Client) SearchHits(ctx context.Context, q search.Query, params search.Params, limit int) ([]search.RankedHit, error) {
	scanner, err := c.Search(ctx, q, params)
	if err != nil {
		return nil, err
	}
	return scanner.Collect(limit)
}

// submit issues CMD=Put and reads the request id and time estimate
func (c *Client) submit(ctx context.Context, q search.Query, params search.Params) (string, time.Duration, error) {
	form := url.Values{
		"CMD":          {"Put"},
		"QUERY":        {q.Sequence},
		"DATABASE":     {params.Database},
		"PROGRAM":      {params.Program},
		"HITLIST_SIZE": {strconv.Itoa(params.HitListSize)},
		"EXPECT":       {strconv.FormatFloat(params.Expect, 'g', -1, 64)},
		"FILTER":       {filterCode(params.LowComplexityFilter)},
	}
	if params.Program == "megablast" {
		form.Set("PROGRAM", "blastn")
		form.Set("MEGABLAST", "on")
	}
	c.identify(form)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, core.NewSearchError("submit", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(req, "submit")
	if err != nil {
		return "", 0, err
	}

	m := ridPattern.FindSubmatch(body)
	if m == nil {
		return "", 0, core.NewSearchError("submit", fmt.Errorf("no RID in response"))
	}
	rtoe := time.Duration(0)
	if t := rtoePattern.FindSubmatch(body); t != nil {
		secs, _ := strconv.Atoi(string(t[1]))
		rtoe = time.Duration(secs) * time.Second
	}
	return string(m[1]), rtoe, nil
}

// wait sleeps through the estimate then polls SearchInfo until the job is
// READY. It reports whether the job produced hits.
func (c *Client) wait(ctx context.Context, rid string, rtoe time.Duration) (bool, error) {
	if err := sleep(ctx, rtoe); err != nil {
		return false, core.NewSearchError("wait", err)
	}
	for polls := 1; ; polls++ {
		body, err := c.get(ctx, "poll", url.Values{
			"CMD":           {"Get"},
			"RID":           {rid},
			"FORMAT_OBJECT": {"SearchInfo"},
		})
		if err != nil {
			return false, err
		}

		status := "UNKNOWN"
		if m := statusPattern.FindSubmatch(body); m != nil {
			status = string(m[1])
		}
		c.logger.Debug("[BlastClient] RID %s poll %d: %s", rid, polls, status)

		switch status {
		case "READY":
			m := hitsPattern.FindSubmatch(body)
			return m == nil || string(m[1]) == "yes", nil
		case "WAITING":
			if err := sleep(ctx, c.cfg.PollInterval); err != nil {
				return false, core.NewSearchError("poll", err)
			}
		default:
			return false, core.NewSearchError("poll", fmt.Errorf("RID %s status %s", rid, status))
		}
	}
}

func (c *Client) get(ctx context.Context, op string, query url.Values) ([]byte, error) {
	c.identify(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, core.NewSearchError(op, err)
	}
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewSearchError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewSearchError(op, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewSearchError(op, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	return body, nil
}

func (c *Client) identify(v url.Values) {
	if c.cfg.Tool != "" {
		v.Set("TOOL", c.cfg.Tool)
	}
	if c.cfg.Email != "" {
		v.Set("EMAIL", c.cfg.Email)
	}
}

func filterCode(on bool) string {
	if on {
		return "L"
	}
	return "F"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
