// Package datasource reads dashboard resources either from the live API or
// from a static export, chosen by configuration.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"threatdash/internal/config"
	"threatdash/internal/export"
	"threatdash/internal/metrics"
)

var ErrNotFound = errors.New("not found")

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

type Client struct {
	mode       string
	baseURL    string
	staticBase string
	http       *http.Client
	log        *slog.Logger
	fetches    metric.Int64Counter
	failures   metric.Int64Counter
}

func New(cfg config.ClientConfig, log *slog.Logger, m metrics.Instruments) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		mode:       cfg.Mode,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		staticBase: strings.TrimRight(cfg.StaticBase, "/"),
		http:       &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		log:        log,
		fetches:    m.SourceFetches,
		failures:   m.SourceErrors,
	}
	switch c.mode {
	case config.ModeLive:
		if c.baseURL == "" {
			return nil, config.ErrClientBaseURL
		}
	case config.ModeStatic:
		if c.staticBase == "" {
			return nil, config.ErrStaticBase
		}
	default:
		return nil, config.ErrClientMode
	}
	return c, nil
}

func (c *Client) Mode() string { return c.mode }

func (c *Client) Static() bool { return c.mode == config.ModeStatic }

// Fetch decodes resource into out. Live mode passes query to the API; static
// mode reads <resource>.json and ignores query.
func (c *Client) Fetch(ctx context.Context, resource string, query url.Values, out any) error {
	if c.Static() {
		return c.fetch(ctx, resource, export.FileName(resource), nil, out)
	}
	return c.fetch(ctx, resource, resource, query, out)
}

// FetchArticle decodes one article detail into out.
func (c *Client) FetchArticle(ctx context.Context, id int64, out any) error {
	name := "article/" + strconv.FormatInt(id, 10)
	if c.Static() {
		return c.fetch(ctx, name, filepath.ToSlash(export.ArticleFile(id)), nil, out)
	}
	return c.fetch(ctx, name, name, nil, out)
}

func (c *Client) fetch(ctx context.Context, name, rel string, query url.Values, out any) error {
	var err error
	if c.Static() && !isHTTP(c.staticBase) {
		err = c.readFile(rel, out)
	} else {
		base := c.baseURL
		if c.Static() {
			base = c.staticBase
		}
		err = c.get(ctx, base+"/"+rel, query, out)
	}
	attrs := metric.WithAttributes(attribute.String("mode", c.mode), attribute.String("resource", metricName(name)))
	if c.fetches != nil {
		c.fetches.Add(ctx, 1, attrs)
	}
	if err != nil {
		if c.failures != nil {
			c.failures.Add(ctx, 1, attrs)
		}
		c.log.Debug("data source fetch failed", "mode", c.mode, "resource", name, "err", err)
		return fmt.Errorf("datasource: fetch %s: %w", name, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values, out any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (c *Client) readFile(rel string, out any) error {
	b, err := os.ReadFile(filepath.Join(c.staticBase, filepath.FromSlash(path.Clean("/" + rel))))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": ...} from an API error body, falling back
// to the raw text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}

func isHTTP(base string) bool {
	return strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://")
}

func metricName(name string) string {
	if strings.HasPrefix(name, "article/") {
		return "article"
	}
	return name
}
