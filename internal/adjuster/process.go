package adjuster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/streamarr/internal/models"
)

// maxContainerSize caps .torrent and .nzb downloads
const maxContainerSize = 10 << 20

// process runs the per-stream steps: resolve, hash extraction, precheck and
// metadata probe. Stream fields are written under the lock.
func (a *Adjuster) process(ctx context.Context, index int) {
	a.mu.Lock()
	stream := a.streams[index]
	link, source, provider := stream.Link, stream.Source, stream.Provider
	hash, lookedUp := stream.Hash, stream.HashLookedUp
	a.mu.Unlock()

	logger := a.logger.WithFields(logrus.Fields{
		"provider": provider,
		"link":     link,
	})

	playLink := link
	if resolved, ok := a.resolve(ctx, source, provider, link); ok {
		playLink = resolved
		a.mu.Lock()
		if resolved != link {
			stream.Resolved = resolved
		}
		a.mu.Unlock()
	} else if needsResolve(source) {
		logger.Debug("Resolve failed, keeping the original link")
		a.mu.Lock()
		stream.ResolveFailed = true
		a.mu.Unlock()
	}
	if ctx.Err() != nil {
		return
	}

	if a.opts.CacheInspect && hash == "" && (source == models.SourceTorrent || source == models.SourceUsenet) {
		found, precheck := a.extractHash(ctx, source, playLink)
		if found == "" && !lookedUp && a.deps.Identifier != nil {
			found = a.identify(ctx, source, playLink)
			lookedUp = true
		}
		a.mu.Lock()
		stream.HashLookedUp = lookedUp
		if precheck != models.PrecheckUnknown {
			stream.Precheck = precheck
		}
		if found != "" {
			stream.Hash = found
			stream.HashTime = a.deps.Now().Unix()
			// A late hash can reveal a duplicate
			a.dedupHashLocked(index)
		}
		a.mu.Unlock()
	}
	if ctx.Err() != nil || !isHTTP(playLink) || source == models.SourceTorrent || source == models.SourceUsenet {
		return
	}

	var head *probeResult
	if a.opts.Precheck {
		head = a.probe(ctx, playLink, a.opts.PrecheckTime)
		status := models.PrecheckOK
		if head.err != nil || head.status >= 400 {
			status = models.PrecheckFailed
		}
		a.mu.Lock()
		stream.Precheck = status
		a.mu.Unlock()
	}
	if a.opts.MetadataProbe && ctx.Err() == nil {
		if head == nil || head.err != nil {
			head = a.probe(ctx, playLink, a.opts.MetadataTime)
		}
		if head.err == nil {
			a.mu.Lock()
			if head.mime != "" {
				stream.Mime = head.mime
			}
			if stream.Size == 0 && head.length > 0 {
				stream.Size = head.length
			}
			a.mu.Unlock()
		}
	}
}

// dedupHashLocked marks the stream at index as a duplicate of an earlier
// stream sharing its newly found hash
func (a *Adjuster) dedupHashLocked(index int) {
	stream := a.streams[index]
	if stream.Exclusions.Has(models.ExcludeDuplicate) {
		return
	}
	for i, other := range a.streams {
		if i == index || other.Exclusions.Has(models.ExcludeDuplicate) || other.Hash != stream.Hash {
			continue
		}
		if i > index {
			// The earlier stream stays the original
			continue
		}
		merged := models.MergeAccess(other.AccessCache, stream.AccessCache)
		other.AccessCache = merged
		stream.AccessCache = models.MergeAccess(merged, nil)
		stream.Exclusions |= models.ExcludeDuplicate
		a.duplicates[i] = append(a.duplicates[i], index)
		if a.counted[index] {
			delete(a.counted, index)
			a.cached--
		}
		if merged.Cached() {
			a.countCachedLocked(i)
		}
		return
	}
}

func needsResolve(source models.SourceType) bool {
	switch source {
	case models.SourceTorrent, models.SourceUsenet, models.SourceLocal, models.SourcePremium:
		return false
	}
	return true
}

// resolve asks the owning provider for the playable link of hoster streams.
// ok is false when resolving was needed and failed.
func (a *Adjuster) resolve(ctx context.Context, source models.SourceType, provider, link string) (string, bool) {
	if !needsResolve(source) {
		return link, true
	}
	if a.deps.Resolver == nil {
		return link, false
	}
	p, ok := a.deps.Resolver.Get(provider)
	if !ok {
		return link, false
	}
	ctx, cancel := withBudget(ctx, a.opts.PrecheckTime)
	defer cancel()

	resolved, err := p.Resolve(ctx, link)
	if err != nil || resolved == "" {
		return link, false
	}
	return resolved, true
}

// extractHash finds the container hash of a torrent or usenet link. Magnets
// carry it; containers are only downloaded when preloading is enabled.
func (a *Adjuster) extractHash(ctx context.Context, source models.SourceType, link string) (string, models.PrecheckStatus) {
	if isMagnet(link) {
		return magnetHash(link), models.PrecheckUnknown
	}
	if !isHTTP(link) {
		return "", models.PrecheckUnknown
	}

	switch {
	case source == models.SourceTorrent && a.opts.PreloadTorrent:
		data, err := a.download(ctx, link)
		if err != nil {
			a.logger.WithError(err).WithField("link", link).Debug("Torrent preload failed")
			return "", models.PrecheckFailed
		}
		mi, err := metainfo.Load(bytes.NewReader(data))
		if err != nil {
			return "", models.PrecheckFailed
		}
		return mi.HashInfoBytes().HexString(), models.PrecheckOK
	case source == models.SourceUsenet && a.opts.PreloadNZB:
		data, err := a.download(ctx, link)
		if err != nil || !bytes.Contains(data, []byte("<nzb")) {
			return "", models.PrecheckFailed
		}
		return "", models.PrecheckOK
	}
	return "", models.PrecheckUnknown
}

// identify asks the identifier service for a hash, once per link
func (a *Adjuster) identify(ctx context.Context, source models.SourceType, link string) string {
	value, err, _ := a.hashes.Do(string(source)+":"+link, func() (interface{}, error) {
		return a.deps.Identifier.HashByLink(ctx, source, link)
	})
	if err != nil {
		a.logger.WithError(err).WithField("link", link).Debug("Identifier lookup failed")
		return ""
	}
	return strings.ToLower(value.(string))
}

func (a *Adjuster) download(ctx context.Context, link string) ([]byte, error) {
	ctx, cancel := withBudget(ctx, a.opts.PrecheckTime)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := a.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("container download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxContainerSize))
}

type probeResult struct {
	status int
	mime   string
	length int64
	err    error
}

// probe sends a HEAD request, retrying once on network errors
func (a *Adjuster) probe(ctx context.Context, link string, budget time.Duration) *probeResult {
	ctx, cancel := withBudget(ctx, budget)
	defer cancel()

	result := &probeResult{}
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := a.deps.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp.Body.Close()
		result.status = resp.StatusCode
		result.mime = strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
		result.length, _ = strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	result.err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))
	return result
}

func withBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

func isHTTP(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}

func isMagnet(link string) bool {
	return strings.HasPrefix(link, "magnet:")
}

var errNoHash = errors.New("magnet has no btih")

// magnetHash returns the lowercase hex info hash of a magnet link
func magnetHash(link string) string {
	if m, err := metainfo.ParseMagnetUri(link); err == nil {
		return m.InfoHash.HexString()
	}
	hash, err := rawMagnetHash(link)
	if err != nil {
		return ""
	}
	return hash
}

// rawMagnetHash reads the btih of magnets the strict parser rejects
func rawMagnetHash(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	for _, xt := range u.Query()["xt"] {
		if hash, ok := strings.CutPrefix(xt, "urn:btih:"); ok && hash != "" {
			return strings.ToLower(hash), nil
		}
	}
	return "", errNoHash
}
