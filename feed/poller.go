package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultInterval is how often feeds are fetched.
const DefaultInterval = 15 * time.Minute

// ErrUnexpectedStatus is returned when a feed URL does not answer 200 OK.
var ErrUnexpectedStatus = errors.New("unexpected feed response status")

// Source is a feed together with the scope its items must pass.
type Source struct {
	Config Config
	Scope  Matcher
}

// Poller fetches sources on an interval and imports their items.
type Poller struct {
	importer *Importer
	sources  func() []Source
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
	onResult func(*Result, error)
}

// NewPoller creates a Poller. sources is called on every poll so configuration reloads
// are picked up.
func NewPoller(importer *Importer, sources func() []Source, options ...func(*Poller) error) (*Poller, error) {
	if importer == nil || sources == nil {
		return nil, errors.New("poller needs an importer and a source list")
	}
	poller := &Poller{
		importer: importer,
		sources:  sources,
		client:   &http.Client{Timeout: 30 * time.Second},
		interval: DefaultInterval,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		if err := option(poller); err != nil {
			return nil, fmt.Errorf("applying option on poller: %w", err)
		}
	}
	return poller, nil
}

// WithInterval sets the polling interval.
func WithInterval(interval time.Duration) func(*Poller) error {
	return func(p *Poller) error {
		if interval <= 0 {
			return fmt.Errorf("invalid poll interval %s", interval)
		}
		p.interval = interval
		return nil
	}
}

// WithClient sets the HTTP client used to fetch feeds.
func WithClient(client *http.Client) func(*Poller) error {
	return func(p *Poller) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		p.client = client
		return nil
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) func(*Poller) error {
	return func(p *Poller) error {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		p.logger = logger
		return nil
	}
}

// WithResultHandler registers a function called after every feed import.
func WithResultHandler(handler func(*Result, error)) func(*Poller) error {
	return func(p *Poller) error {
		p.onResult = handler
		return nil
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fetches and imports every source once. Failures of one feed do not stop the others.
func (p *Poller) PollOnce(ctx context.Context) ([]*Result, error) {
	var results []*Result
	var errs []error
	for _, source := range p.sources() {
		if ctx.Err() != nil {
			break
		}
		result, err := p.poll(ctx, source)
		if err != nil {
			p.logger.Error("polling feed", "feed", source.Config.Name, "error", err)
			errs = append(errs, err)
		}
		if result != nil {
			results = append(results, result)
		}
		if p.onResult != nil {
			p.onResult(result, err)
		}
	}
	return results, errors.Join(errs...)
}

func (p *Poller) poll(ctx context.Context, source Source) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.Config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", source.Config.Name, err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source.Config.Name, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, source.Config.Name, res.StatusCode)
	}

	items, err := Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source.Config.Name, err)
	}
	result, err := p.importer.Import(ctx, source.Config, source.Scope, items)
	if err != nil {
		return result, fmt.Errorf("importing %s: %w", source.Config.Name, err)
	}
	return result, nil
}
