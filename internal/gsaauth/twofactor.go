package gsaauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nab138/isideload/internal/anisette"
	"github.com/nab138/isideload/internal/grandslam"
	"github.com/nab138/isideload/internal/plistutil"
)

const smsVerifyURL = "https://gsa.apple.com/auth/verify/phone/securitycode"

// build2FAHeaders assembles the anisette header map plus the identity
// token and routing info required on every 2FA request (§4.4).
func (a *Account) build2FAHeaders(data anisette.Data) (http.Header, error) {
	adsid, err := a.adsID()
	if err != nil {
		return nil, err
	}
	token, err := a.idmsToken()
	if err != nil {
		return nil, err
	}

	headers := data.Headers()
	identity := base64.StdEncoding.EncodeToString([]byte(adsid + ":" + token))
	headers.Set("X-Apple-Identity-Token", identity)
	headers.Set("X-Apple-I-MD-RINFO", data.RoutingInfo)
	return headers, nil
}

// trustedDevice2FA drives the trusted-device verification path (§4.4).
func (a *Account) trustedDevice2FA(ctx context.Context, callback TwoFactorCallback) error {
	data, err := a.anisette.Data(ctx)
	if err != nil {
		return fmt.Errorf("gsaauth: get anisette data for 2fa: %w", err)
	}
	headers, err := a.build2FAHeaders(data)
	if err != nil {
		return err
	}

	urlBag, err := a.gs.URLBag(ctx)
	if err != nil {
		return fmt.Errorf("gsaauth: fetch url bag: %w", err)
	}
	requestURL, ok := urlBag["trustedDeviceSecondaryAuth"]
	if !ok {
		return &ParseProtocolError{Path: "urls.trustedDeviceSecondaryAuth", Reason: "missing from url bag"}
	}
	validateURL, ok := urlBag["validateCode"]
	if !ok {
		return &ParseProtocolError{Path: "urls.validateCode", Reason: "missing from url bag"}
	}

	if _, err := a.get2FA(ctx, requestURL, headers); err != nil {
		return fmt.Errorf("gsaauth: request trusted device 2fa: %w", err)
	}

	code, err := callback(ctx)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return &No2FACodeProvidedError{}
	}

	codeHeaders := cloneHeader(headers)
	codeHeaders.Set("security-code", code)
	body, err := a.get2FA(ctx, validateURL, codeHeaders)
	if err != nil {
		return fmt.Errorf("gsaauth: submit trusted device 2fa code: %w", err)
	}

	doc, err := plistutil.ParseXML(body)
	if err != nil {
		return &ParseProtocolError{Path: "trustedDeviceSecondaryAuth response", Reason: err.Error()}
	}
	return grandslam.CheckError(doc)
}

// sms2FA drives the SMS verification path (§4.4). Per the open question in
// §9, the phone number id is hardcoded to 1 rather than looked up from a
// trustedDeviceSecondaryAuth precursor response.
func (a *Account) sms2FA(ctx context.Context, callback TwoFactorCallback) error {
	data, err := a.anisette.Data(ctx)
	if err != nil {
		return fmt.Errorf("gsaauth: get anisette data for 2fa: %w", err)
	}
	headers, err := a.build2FAHeaders(data)
	if err != nil {
		return err
	}

	urlBag, err := a.gs.URLBag(ctx)
	if err != nil {
		return fmt.Errorf("gsaauth: fetch url bag: %w", err)
	}
	requestURL, ok := urlBag["secondaryAuth"]
	if !ok {
		return &ParseProtocolError{Path: "urls.secondaryAuth", Reason: "missing from url bag"}
	}

	if _, err := a.get2FA(ctx, requestURL, headers); err != nil {
		return fmt.Errorf("gsaauth: request sms 2fa: %w", err)
	}

	code, err := callback(ctx)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return &No2FACodeProvidedError{}
	}

	payload, err := json.Marshal(map[string]any{
		"securityCode": map[string]string{"code": code},
		"phoneNumber":  map[string]int{"id": 1},
		"mode":         "sms",
	})
	if err != nil {
		return fmt.Errorf("gsaauth: marshal sms 2fa payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, smsVerifyURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	mergeHeadersInto(req.Header, headers)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")

	resp, err := a.gs.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("gsaauth: submit sms 2fa code: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gsaauth: read sms 2fa response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return parseSMSError(resp.StatusCode, body)
}

func parseSMSError(status int, body []byte) error {
	var payload struct {
		ServiceErrors []struct {
			Code    string `json:"code"`
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"serviceErrors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.ServiceErrors) > 0 {
		first := payload.ServiceErrors[0]
		return &Bad2FACodeError{Code: first.Code, Title: first.Title, Message: first.Message}
	}
	return fmt.Errorf("gsaauth: sms 2fa code submission failed with status %d: %s", status, string(body))
}

// get2FA issues a GET with the 2FA header set and returns the raw body,
// erroring on a non-2xx status.
func (a *Account) get2FA(ctx context.Context, url string, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	mergeHeadersInto(req.Header, headers)

	resp, err := a.gs.HTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: read 2fa response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gsaauth: 2fa request to %s failed with status %d", url, resp.StatusCode)
	}
	return body, nil
}

func mergeHeadersInto(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Set(k, v)
		}
	}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
