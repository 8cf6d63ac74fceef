package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/koios/trmnl-renderer/pkg/models"
	"go.uber.org/zap"
)

// Repository resolves the latest published firmware, caching it in a Store
// for a fixed freshness window.
type Repository struct {
	apiURI string
	client *http.Client
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Repository
type Option func(*Repository)

// WithHTTPClient overrides the HTTP client used to query the firmware API
func WithHTTPClient(client *http.Client) Option {
	return func(r *Repository) { r.client = client }
}

// WithClock injects the clock used to stamp fetched descriptors
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a firmware repository querying apiURI
func NewRepository(apiURI string, store Store, ttl time.Duration, logger *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		apiURI: apiURI,
		client: &http.Client{Timeout: 10 * time.Second},
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type latestResponse struct {
	URL     string `json:"url"`
	Version string `json:"version"`
}

// Latest returns the latest firmware descriptor, from cache when still fresh
func (r *Repository) Latest(ctx context.Context) (*models.Firmware, error) {
	fw, ok, err := r.store.Get(ctx)
	if err != nil {
		r.logger.Warn("Failed to read cached firmware descriptor", zap.Error(err))
	} else if ok {
		r.logger.Debug("Using firmware descriptor from cache", zap.String("version", fw.Version))
		return fw, nil
	}

	endpoint, err := url.JoinPath(r.apiURI, "firmware", "latest")
	if err != nil {
		return nil, fmt.Errorf("invalid firmware api uri: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create firmware request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest firmware: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch latest firmware: status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode firmware response: %w", err)
	}
	if body.Version == "" || body.URL == "" {
		return nil, fmt.Errorf("firmware response is missing url or version")
	}

	fw = &models.Firmware{
		URL:       body.URL,
		Version:   body.Version,
		FetchedAt: r.now(),
	}

	if err := r.store.Set(ctx, fw, r.ttl); err != nil {
		r.logger.Warn("Failed to cache firmware descriptor", zap.Error(err))
	}

	r.logger.Info("Discovered latest firmware",
		zap.String("version", fw.Version),
		zap.String("url", fw.URL))

	return fw, nil
}
