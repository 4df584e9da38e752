package transport

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Options tunes the shared outbound client. Zero values take the defaults.
type Options struct {
	// Timeout bounds a whole request. Callers usually also set a per-call
	// context deadline.
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	MaxIdleConnsPerHost   int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.ResponseHeaderTimeout <= 0 {
		o.ResponseHeaderTimeout = 30 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 15 * time.Second
	}
	if o.MaxIdleConnsPerHost <= 0 {
		o.MaxIdleConnsPerHost = 5
	}
	return o
}

// NewHTTPClient returns a client with explicit timeouts and HTTP/2 enabled on
// TLS connections.
func NewHTTPClient(opts Options) (http.Client, error) {
	opts = opts.withDefaults()

	tr := &http.Transport{
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   opts.DialTimeout,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   opts.Timeout,
	}, nil
}
