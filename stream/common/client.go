package common

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"
)

// NewClient builds the shared HTTP client for one stream from its options.
// Redirects are followed with the request headers preserved, which matters
// for CDNs that authenticate playlist and segment fetches via headers.
func NewClient(opts HTTPOptions) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:       10,
		IdleConnTimeout:    300 * time.Second,
		DisableCompression: false,
	}

	if !opts.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, NewStreamError(StreamTypeHTTP, opts.Proxy,
				ErrCodeConnection, "invalid proxy URL", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// ApplyRequestOptions sets the stream's headers and cookies on a request
func ApplyRequestOptions(req *http.Request, opts HTTPOptions) {
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	for name, value := range opts.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// Backoff computes the wait before retry attempt n (0-based) with
// exponential growth capped at max
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// RetryableStatus reports whether an HTTP status code is worth retrying.
// Server errors and the two retryable client errors (408, 429) qualify;
// other 4xx codes are permanent.
func RetryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
