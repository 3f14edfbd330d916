package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
	"github.com/StrathCole/fee-oracle/pkg/version"
)

const maxResponseBytes = 8 << 20

func init() {
	Register("http", NewHTTPSourceFromConfig)
}

// HTTPSource pulls observations from another node's /v1/observations endpoint.
type HTTPSource struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewHTTPSource creates a source reading from baseURL.
func NewHTTPSource(name, baseURL string, timeout time.Duration, logger *logging.Logger) *HTTPSource {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &HTTPSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("source", name),
	}
}

// NewHTTPSourceFromConfig is the registry factory. It reads "url" and an
// optional "timeout".
func NewHTTPSourceFromConfig(name string, config map[string]interface{}, logger *logging.Logger) (Source, error) {
	baseURL, ok := stringSetting(config, "url")
	if !ok {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, name)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	timeout, err := durationSetting(config, "timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}
	return NewHTTPSource(name, baseURL, timeout, logger), nil
}

// Name returns the source name.
func (s *HTTPSource) Name() string { return s.name }

type observationsResponse struct {
	Status int                   `json:"status"`
	Data   []fees.RawObservation `json:"data"`
}

// GetFreshObservations fetches and parses the upstream window. Entries that
// fail to parse are logged and dropped.
func (s *HTTPSource) GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("max_age", maxAge.String())
	endpoint := s.baseURL + "/v1/observations?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch observations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload observationsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	out := make([]fees.Observation, 0, len(payload.Data))
	for _, raw := range payload.Data {
		obs, err := fees.ParseObservation(raw)
		if err != nil {
			s.logger.Warn("Dropping invalid upstream observation", "symbol", symbol, "error", err)
			continue
		}
		if obs.Symbol != symbol {
			continue
		}
		metrics.RecordObservation(obs.Source, string(obs.Kind()))
		out = append(out, obs)
	}
	return out, nil
}

var _ Source = (*HTTPSource)(nil)
