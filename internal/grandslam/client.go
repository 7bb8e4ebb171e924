// Package grandslam implements the envelope layer around Apple's GrandSlam
// identity service: a pinned HTTPS client, the URL-bag lookup, and the XML
// plist request/response framing every authenticated call rides on.
package grandslam

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"sync"
	"time"

	"github.com/nab138/isideload/internal/gsalog"
	"github.com/nab138/isideload/internal/plistutil"
)

const (
	xcodeVersion    = "14.2 (14C18)"
	xcodeAppInfo    = "com.apple.gs.xcode.auth"
	plistContentTyp = "text/x-xml-plist"
)

// lookupURL is a var, not a const, so tests can point it at an
// httptest.Server in place of Apple's real endpoint.
var lookupURL = "https://gsa.apple.com/grandslam/GsService2/lookup"

// ClientInfo is the advisory client-info/user-agent pair the anisette
// service supplies and GrandSlam echoes back in its headers.
type ClientInfo struct {
	ClientInfo string
	UserAgent  string
}

// Client is a single HTTP client pinned to Apple's root CA, plus the
// cached URL bag and header-framing helpers every GSA call needs.
type Client struct {
	http       *http.Client
	clientInfo ClientInfo
	debug      bool

	urlBagOnce sync.Once
	urlBag     map[string]string
	urlBagErr  error
}

// NewClient builds a GrandSlam envelope client. debug enables verbose
// connection logging and, dangerously, disables TLS certificate
// verification — never enable it outside of a local debugging session.
func NewClient(clientInfo ClientInfo, debug bool) (*Client, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(appleRootCAPEM) {
		return nil, fmt.Errorf("grandslam: failed to parse embedded Apple root CA")
	}

	tlsConfig := &tls.Config{RootCAs: pool}
	if debug {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- opt-in debug only
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: 30 * time.Second,
		ForceAttemptHTTP2:   false, // GSA expects HTTP/1 title-case headers
	}

	var rt http.RoundTripper = transport
	if debug {
		gsalog.Default().Warnf("grandslam: debug mode enabled, TLS verification disabled")
		rt = &debugRoundTripper{next: transport, log: gsalog.New(true)}
	}

	return &Client{
		http: &http.Client{
			Transport: rt,
			Timeout:   60 * time.Second,
		},
		clientInfo: clientInfo,
		debug:      debug,
	}, nil
}

// baseHeaders builds the fixed outgoing header set from §6. omitContentType
// drops Content-Type/Accept. The 2FA paths in gsaauth send their own
// headers through HTTPClient and do not use this helper.
func (c *Client) baseHeaders(omitContentType bool) http.Header {
	h := make(http.Header)
	if !omitContentType {
		h.Set("Content-Type", plistContentTyp)
		h.Set("Accept", plistContentTyp)
	}
	h.Set("X-Mme-Client-Info", c.clientInfo.ClientInfo)
	if c.clientInfo.UserAgent != "" {
		h.Set("User-Agent", c.clientInfo.UserAgent)
	}
	h.Set("X-Xcode-Version", xcodeVersion)
	h.Set("X-Apple-App-Info", xcodeAppInfo)
	return h
}

func mergeHeaders(dst, extra http.Header) {
	for k, vs := range extra {
		for _, v := range vs {
			dst.Set(k, v)
		}
	}
}

// URLBag fetches (and caches) the mapping from endpoint names to URLs.
func (c *Client) URLBag(ctx context.Context) (map[string]string, error) {
	c.urlBagOnce.Do(func() {
		c.urlBag, c.urlBagErr = c.fetchURLBag(ctx)
	})
	return c.urlBag, c.urlBagErr
}

func (c *Client) fetchURLBag(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("grandslam: build url bag request: %w", err)
	}
	mergeHeaders(req.Header, c.baseHeaders(false))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grandslam: url bag request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("grandslam: read url bag response: %w", err)
	}

	doc, err := plistutil.ParseXML(body)
	if err != nil {
		return nil, fmt.Errorf("grandslam: parse url bag: %w", err)
	}
	urls, err := plistutil.GetDict(doc, "urls")
	if err != nil {
		return nil, fmt.Errorf("grandslam: url bag missing urls: %w", err)
	}

	out := make(map[string]string, len(urls))
	for name, v := range urls {
		if s, ok := v.(string); ok {
			out[name] = s
		}
	}
	return out, nil
}

// PlistRequest POSTs body as an XML plist to url and returns the decoded
// "Response" dictionary. extraHeaders are merged over the base set and may
// override its values (e.g. an HTTP connection-close header); they cannot
// remove a header. omitContentType drops Content-Type/Accept from the base
// set.
func (c *Client) PlistRequest(ctx context.Context, url string, body plistutil.Dict, extraHeaders http.Header, omitContentType bool) (plistutil.Dict, error) {
	encoded, err := plistutil.WriteXML(body)
	if err != nil {
		return nil, fmt.Errorf("grandslam: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("grandslam: build request: %w", err)
	}
	mergeHeaders(req.Header, c.baseHeaders(omitContentType))
	mergeHeaders(req.Header, extraHeaders)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grandslam: request to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("grandslam: read response from %s: %w", url, err)
	}

	doc, err := plistutil.ParseXML(respBody)
	if err != nil {
		return nil, fmt.Errorf("grandslam: parse response from %s: %w", url, err)
	}
	response, err := plistutil.GetDict(doc, "Response")
	if err != nil {
		return nil, fmt.Errorf("grandslam: response from %s missing Response: %w", url, err)
	}
	return response, nil
}

// HTTPClient exposes the underlying *http.Client for collaborators (2FA
// GET requests, SMS verification) that need to issue plain HTTP calls
// through the same pinned transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// ClientInfo returns the client-info/user-agent pair the client was built
// with.
func (c *Client) ClientInfo() ClientInfo {
	return c.clientInfo
}

// debugRoundTripper dumps request/response traffic to the debug logger.
// Sensitive bodies are redacted unless ISIDELOAD_DEBUG_SENSITIVE is set.
type debugRoundTripper struct {
	next http.RoundTripper
	log  *gsalog.Logger
}

func (d *debugRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	logSensitive := os.Getenv("ISIDELOAD_DEBUG_SENSITIVE") != ""

	if dump, err := httputil.DumpRequestOut(req, logSensitive); err == nil {
		d.log.Debugf("grandslam: request:\n%s", dump)
	}

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if dump, err := httputil.DumpResponse(resp, logSensitive); err == nil {
		d.log.Debugf("grandslam: response:\n%s", dump)
	}
	return resp, nil
}
