// Package greenhttp builds the HTTP clients used to talk to the hub API, with
// an ordered protocol fallback chain (HTTP/3, HTTP/2, HTTP/1.1).
package greenhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"hf_downloader/internal/utils"
)

const (
	ProtocolAuto  = "auto"
	ProtocolHTTP1 = "http1"
	ProtocolHTTP2 = "http2"
	ProtocolHTTP3 = "http3"
)

const (
	dialTimeout           = 10 * time.Second
	keepAlive             = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 30 * time.Second
	maxRedirects          = 10
)

type protocolClient struct {
	name   string
	client *http.Client
}

// HTTPClient sends requests over the first protocol in its chain that
// connects; transport-level failures fall through to the next one.
type HTTPClient struct {
	primary        protocolClient
	fallbacks      []protocolClient
	http3Transport *http3.Transport
}

// NewHTTPClient builds a client for a protocol preference (auto, http1,
// http2, http3). Unknown values behave like auto.
func NewHTTPClient(protocol string) *HTTPClient {
	h1 := protocolClient{name: ProtocolHTTP1, client: newClient(buildTransport(false))}
	h2 := protocolClient{name: ProtocolHTTP2, client: newClient(buildTransport(true))}

	newH3 := func() (protocolClient, *http3.Transport) {
		tr := &http3.Transport{
			TLSClientConfig: &tls.Config{NextProtos: []string{"h3"}},
			QUICConfig: &quic.Config{
				HandshakeIdleTimeout: tlsHandshakeTimeout,
				MaxIdleTimeout:       idleConnTimeout,
				KeepAlivePeriod:      keepAlive,
			},
		}
		return protocolClient{name: ProtocolHTTP3, client: newClient(tr)}, tr
	}

	var c *HTTPClient
	switch strings.ToLower(protocol) {
	case ProtocolHTTP1:
		c = &HTTPClient{primary: h1}
	case ProtocolHTTP2:
		c = &HTTPClient{primary: h2, fallbacks: []protocolClient{h1}}
	case ProtocolHTTP3:
		h3, tr := newH3()
		c = &HTTPClient{primary: h3, fallbacks: []protocolClient{h2, h1}, http3Transport: tr}
	default:
		// HTTP/3 only on request: hub mirrors rarely advertise it.
		c = &HTTPClient{primary: h2, fallbacks: []protocolClient{h1}}
	}
	utils.Debug("greenhttp: protocol=%s chain=%s", protocol, c.chain())
	return c
}

func buildTransport(forceHTTP2 bool) *http.Transport {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ForceAttemptHTTP2:     forceHTTP2,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
	}
	if !forceHTTP2 {
		transport.TLSNextProto = make(map[string]func(authority string, c *tls.Conn) http.RoundTripper)
	}
	return transport
}

func newClient(transport http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: transport,
		// Keep the Authorization header across the hub's CDN redirects.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if auth := via[0].Header.Get("Authorization"); auth != "" && req.Header.Get("Authorization") == "" {
				req.Header.Set("Authorization", auth)
			}
			return nil
		},
	}
}

func (c *HTTPClient) chain() string {
	names := []string{c.primary.name}
	for _, f := range c.fallbacks {
		names = append(names, f.name)
	}
	return strings.Join(names, " -> ")
}

// Protocols lists the fallback chain in order.
func (c *HTTPClient) Protocols() []string {
	return strings.Split(c.chain(), " -> ")
}

// DoRequest sends req, retrying on the next protocol when the previous one
// could not produce a response at all. Requests with a body are not retried.
func (c *HTTPClient) DoRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.primary.client.Do(req)
	if err == nil || req.Body != nil || req.Context().Err() != nil {
		return resp, err
	}
	for _, f := range c.fallbacks {
		utils.Debug("greenhttp: %s failed for %s: %v; trying %s", c.primary.name, req.URL.Host, err, f.name)
		resp, err = f.client.Do(req.Clone(req.Context()))
		if err == nil || req.Context().Err() != nil {
			return resp, err
		}
	}
	return nil, err
}

func (c *HTTPClient) NewRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}
	return req, nil
}

func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, method, url, headers, nil)
	if err != nil {
		return nil, err
	}
	return c.DoRequest(req)
}

// Close releases the QUIC transport, if one was built.
func (c *HTTPClient) Close() {
	if c == nil || c.http3Transport == nil {
		return
	}
	if err := c.http3Transport.Close(); err != nil {
		utils.Debug("greenhttp: closing HTTP/3 transport: %v", err)
	}
}
