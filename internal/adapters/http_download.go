package adapters

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"webkernel-modules/internal/shared"
	"webkernel-modules/internal/types"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	defaultDownloadTimeout = 10 * time.Minute
	defaultMaxRedirects    = 5
	maxJSONResponseBytes   = 8 << 20
	maxChecksumBytes       = 64 << 10
	defaultUserAgent       = "webkernel-modules"
)

var progressThresholds = []int{25, 50, 75, 100}

// HTTPProviderConfig holds the transport limits shared by source providers.
type HTTPProviderConfig struct {
	APIBase         string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	MaxRedirects    int
	UserAgent       string
}

func normalizeHTTPProviderConfig(cfg HTTPProviderConfig, defaultBase string) HTTPProviderConfig {
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.APIBase == "" {
		cfg.APIBase = defaultBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return cfg
}

// redirectDownloader follows redirects itself so credentials are attached
// per hop, and only to hosts the provider trusts.
type redirectDownloader struct {
	client       *http.Client
	maxRedirects int
	userAgent    string
	token        string
	trusted      func(*url.URL) bool
}

func newRedirectDownloader(timeout time.Duration, maxRedirects int, userAgent string, token string, trusted func(*url.URL) bool) redirectDownloader {
	return redirectDownloader{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRedirects: maxRedirects,
		userAgent:    userAgent,
		token:        token,
		trusted:      trusted,
	}
}

// open returns the final 200 response after at most maxRedirects hops. The
// caller closes the body.
func (d redirectDownloader) open(ctx context.Context, rawURL string) (*http.Response, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.NewNetworkError("invalid download url", err)
	}
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, types.NewNetworkError("failed to build download request", err)
		}
		req.Header.Set("User-Agent", d.userAgent)
		if d.token != "" && d.trusted != nil && d.trusted(current) {
			req.Header.Set("Authorization", "Bearer "+d.token)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, types.NewNetworkError("download request failed for "+shared.RedactURL(current.String()), err)
		}
		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			_ = resp.Body.Close()
			if location == "" {
				return nil, types.NewNetworkError("redirect without location from "+shared.RedactURL(current.String()), nil)
			}
			if hop >= d.maxRedirects {
				return nil, types.NewNetworkError(fmt.Sprintf("too many redirects (limit %d)", d.maxRedirects), nil)
			}
			next, err := current.Parse(location)
			if err != nil {
				return nil, types.NewNetworkError("invalid redirect location", err)
			}
			log.Ctx(ctx).Debug().Str("from", shared.RedactURL(current.String())).Str("to", shared.RedactURL(next.String())).Msg("following redirect")
			current = next
			continue
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, types.NewNetworkError("download failed", shared.HTTPStatusError(resp.StatusCode, current.String()))
		}
		return resp, nil
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// download streams rawURL into dest, logging coarse progress when the size
// is known.
func (d redirectDownloader) download(ctx context.Context, rawURL string, dest string) (int64, error) {
	resp, err := d.open(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	out, err := os.Create(dest)
	if err != nil {
		return 0, types.NewModuleError("failed to create download file", err)
	}
	progress := &progressReporter{ctx: ctx, total: resp.ContentLength, url: shared.RedactURL(rawURL)}
	written, err := io.Copy(io.MultiWriter(out, progress), io.LimitReader(resp.Body, maxExtractedBytes+1))
	closeErr := out.Close()
	if err != nil {
		return written, types.NewNetworkError("download interrupted", err)
	}
	if closeErr != nil {
		return written, types.NewModuleError("failed to write download file", closeErr)
	}
	if written > maxExtractedBytes {
		return written, types.NewModuleError("download exceeds size limit", nil)
	}
	return written, nil
}

func (d redirectDownloader) fetchText(ctx context.Context, rawURL string) (string, error) {
	resp, err := d.open(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChecksumBytes))
	if err != nil {
		return "", types.NewNetworkError("failed to read "+shared.RedactURL(rawURL), err)
	}
	return string(body), nil
}

type progressReporter struct {
	ctx     context.Context
	total   int64
	written int64
	next    int
	url     string
}

func (p *progressReporter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total <= 0 {
		return len(b), nil
	}
	percent := int(p.written * 100 / p.total)
	for p.next < len(progressThresholds) && percent >= progressThresholds[p.next] {
		log.Ctx(p.ctx).Info().
			Str("url", p.url).
			Int("percent", progressThresholds[p.next]).
			Int64("bytes", p.written).
			Msg("download progress")
		p.next++
	}
	return len(b), nil
}

// verifyReleaseChecksum hashes content and compares it with the checksum
// declared by the release, loading a checksum asset through fetch when the
// release only references one. Releases without a checksum pass.
func verifyReleaseChecksum(ctx context.Context, content io.Reader, release types.Release, fetch func(context.Context, string) (string, error)) (bool, error) {
	if !release.HasChecksum() {
		return true, nil
	}
	expected := release.Checksum
	if expected == "" {
		if fetch == nil {
			return false, types.NewIntegrityError("checksum asset cannot be fetched", nil)
		}
		text, err := fetch(ctx, release.ChecksumURL)
		if err != nil {
			return false, types.NewIntegrityError("failed to fetch checksum asset", err)
		}
		expected, err = parseChecksumFile(text, path.Base(release.DownloadURL))
		if err != nil {
			return false, err
		}
	}
	expected = strings.ToLower(strings.TrimSpace(expected))
	if len(expected) != sha256.Size*2 {
		return false, types.NewIntegrityError("malformed sha256 checksum", nil)
	}
	hasher := sha256.New()
	if _, err := io.Copy(hasher, content); err != nil {
		return false, types.NewIntegrityError("failed to hash downloaded archive", err)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) != 1 {
		return false, types.NewIntegrityError(fmt.Sprintf("checksum mismatch for %s", release.Tag), nil)
	}
	return true, nil
}

// parseChecksumFile accepts a bare digest or sha256sum output. With several
// lines the one naming fileName wins.
func parseChecksumFile(content string, fileName string) (string, error) {
	var candidates []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		switch len(fields) {
		case 0:
			continue
		case 1:
			candidates = append(candidates, fields[0])
		default:
			if strings.TrimPrefix(fields[1], "*") == fileName {
				return fields[0], nil
			}
			candidates = append(candidates, fields[0])
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", types.NewIntegrityError("checksum asset has no entry for "+fileName, nil)
}

// downloadAndExtract is the download half shared by providers: fetch into a
// temporary file, verify, extract into targetDir and flatten.
func downloadAndExtract(ctx context.Context, downloader redirectDownloader, release types.Release, targetDir string, verify func(context.Context, io.Reader, types.Release) (bool, error)) error {
	if strings.TrimSpace(release.DownloadURL) == "" {
		return types.NewModuleError("release "+release.Tag+" has no download url", nil)
	}
	tmp, err := os.CreateTemp(filepath.Dir(targetDir), ".download-*.archive")
	if err != nil {
		return types.NewModuleError("failed to create temporary download file", err)
	}
	archivePath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(archivePath)

	started := time.Now()
	size, err := downloader.download(ctx, release.DownloadURL, archivePath)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("release", release.Tag).
		Int64("bytes", size).
		Dur("elapsed", time.Since(started)).
		Msg("release downloaded")

	archive, err := os.Open(archivePath)
	if err != nil {
		return types.NewModuleError("failed to reopen downloaded archive", err)
	}
	_, verifyErr := verify(ctx, archive, release)
	_ = archive.Close()
	if verifyErr != nil {
		return verifyErr
	}
	if err := ExtractArchive(archivePath, targetDir); err != nil {
		return err
	}
	if _, err := FlattenSingleRoot(targetDir); err != nil {
		return err
	}
	return nil
}
