package debrid

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amaumene/streamarr/internal/metrics"
	"github.com/amaumene/streamarr/internal/models"
)

const (
	torboxAPIBase = "https://api.torbox.app/v1/api"
	// checkBatchSize is the number of hashes sent per checkcached call
	checkBatchSize = 100
)

// TorBox checks the torrent and usenet caches of TorBox
type TorBox struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewTorBox creates a TorBox client
func NewTorBox(apiKey string, logger *logrus.Logger) (*TorBox, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TorBox API key is required")
	}

	return &TorBox{
		apiKey:  apiKey,
		baseURL: torboxAPIBase,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		logger:  logger,
	}, nil
}

// WithBaseURL points the client at another API root
func (t *TorBox) WithBaseURL(baseURL string) *TorBox {
	t.baseURL = strings.TrimSuffix(baseURL, "/")
	return t
}

// ID returns the service id
func (t *TorBox) ID() string {
	return "torbox"
}

// Supports reports whether TorBox can answer for source
func (t *TorBox) Supports(source models.SourceType) bool {
	return source == models.SourceTorrent || source == models.SourceUsenet
}

// ByHash is true for every supported source
func (t *TorBox) ByHash(source models.SourceType) bool {
	return t.Supports(source)
}

type checkCachedResponse struct {
	Success bool                       `json:"success"`
	Detail  string                     `json:"detail"`
	Data    map[string]json.RawMessage `json:"data"`
}

// Check looks hashes up in batches. Every key gets exactly one answer unless
// the lookup fails.
func (t *TorBox) Check(ctx context.Context, source models.SourceType, keys []string, fn Callback) error {
	var endpoint string
	switch source {
	case models.SourceTorrent:
		endpoint = "/torrents/checkcached"
	case models.SourceUsenet:
		endpoint = "/usenet/checkcached"
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, source)
	}

	for start := 0; start < len(keys); start += checkBatchSize {
		end := min(start+checkBatchSize, len(keys))
		batch := keys[start:end]

		cached, err := t.checkBatch(ctx, endpoint, batch)
		if err != nil {
			return err
		}
		for _, key := range batch {
			hit := cached[strings.ToLower(key)]
			result := "uncached"
			if hit {
				result = "cached"
			}
			metrics.DebridLookups.WithLabelValues(t.ID(), result).Inc()
			fn(key, hit)
		}

		t.logger.WithFields(logrus.Fields{
			"source": source,
			"hashes": len(batch),
			"cached": len(cached),
		}).Debug("TorBox cache check")
	}
	return nil
}

func (t *TorBox) checkBatch(ctx context.Context, endpoint string, hashes []string) (map[string]bool, error) {
	params := url.Values{}
	params.Set("hash", strings.Join(hashes, ","))
	params.Set("format", "object")
	params.Set("list_files", "false")
	target := t.baseURL + endpoint + "?" + params.Encode()

	var result checkCachedResponse
	operation := func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return t.get(ctx, target, &result)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to check TorBox cache: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("TorBox cache check failed: %s", result.Detail)
	}

	cached := make(map[string]bool, len(result.Data))
	for hash := range result.Data {
		cached[strings.ToLower(hash)] = true
	}
	return cached, nil
}

var errRetryable = errors.New("retryable status")

func (t *TorBox) get(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// HashByLink returns the TorBox usenet hash of an NZB link, the MD5 of the
// link itself. Torrents and other sources have no hash TorBox can derive
// from the link alone.
func (t *TorBox) HashByLink(ctx context.Context, source models.SourceType, link string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if source != models.SourceUsenet {
		return "", nil
	}
	if strings.HasPrefix(link, "magnet:") || strings.HasSuffix(strings.ToLower(pathOf(link)), ".torrent") {
		return "", nil
	}
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:]), nil
}

func pathOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	return u.Path
}
