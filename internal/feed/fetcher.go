// Package feed downloads and parses the semicolon-delimited bulk exports
// (station registry and daily prices).
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
)

// DefaultTimeout bounds a single feed download.
const DefaultTimeout = 60 * time.Second

var (
	// ErrUnexpectedStatus is returned for non-2xx feed responses.
	ErrUnexpectedStatus = errors.New("unexpected feed status")

	// ErrHeaderNotFound is returned when the header marker is absent under
	// both UTF-8 and Latin-1 decoding.
	ErrHeaderNotFound = errors.New("feed header not found")
)

// Encoding names the text encoding a document was decoded with.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "iso-8859-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures a Fetcher.
type Options struct {
	Timeout    time.Duration      // Default: DefaultTimeout
	HTTPClient *http.Client       // Default: http.Client without its own timeout
	Logger     logrus.FieldLogger // Default: logrus.StandardLogger()
}

// Fetcher downloads bulk feed documents.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts.Logger != nil {
		log = opts.Logger
	}
	return &Fetcher{
		client:  client,
		timeout: timeout,
		log:     log,
	}
}

// FetchText downloads url and returns its decoded text. The document must
// contain marker (a fragment of the expected header row); if it is not found
// in the UTF-8 reading the bytes are decoded again as ISO-8859-1.
func (f *Fetcher) FetchText(ctx context.Context, url, marker string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	text, enc, err := Decode(body, marker)
	if err != nil {
		return "", fmt.Errorf("%s: %w", url, err)
	}

	f.log.WithFields(logrus.Fields{
		"url":      url,
		"bytes":    len(body),
		"encoding": enc,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Debug("feed downloaded")

	return text, nil
}

// Decode converts raw feed bytes to text, trying UTF-8 first and falling back
// to ISO-8859-1 when the bytes are not valid UTF-8 or marker is missing.
func Decode(raw []byte, marker string) (string, Encoding, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if utf8.Valid(raw) {
		text := string(raw)
		if strings.Contains(text, marker) {
			return text, EncodingUTF8, nil
		}
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("decode latin-1: %w", err)
	}
	text := string(decoded)
	if !strings.Contains(text, marker) {
		return "", "", fmt.Errorf("%w: marker %q", ErrHeaderNotFound, marker)
	}
	return text, EncodingLatin1, nil
}
