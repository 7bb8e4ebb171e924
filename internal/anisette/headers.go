package anisette

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// getHeadersRequest is the JSON body posted to /v3/get_headers.
type getHeadersRequest struct {
	Identifier string `json:"identifier"`
	AdiPB      string `json:"adi_pb"`
}

// getHeadersResponse covers both the success and GetHeadersError shapes;
// which fields are populated is determined by Result.
type getHeadersResponse struct {
	Result string `json:"result"`

	XAppleIMDM     string `json:"X-Apple-I-MD-M"`
	XAppleIMD      string `json:"X-Apple-I-MD"`
	XAppleIMDRINFO string `json:"X-Apple-I-MD-RINFO"`

	Message string `json:"message"`
}

// fetchHeaderData posts /v3/get_headers and builds an AnisetteData
// snapshot from a successful response.
func (p *RemoteV3Provider) fetchHeaderData(ctx context.Context) (Data, error) {
	reqBody := getHeadersRequest{
		Identifier: base64.StdEncoding.EncodeToString(p.state.KeychainIdentifier[:]),
		AdiPB:      base64.StdEncoding.EncodeToString(p.state.AdiPB),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Data{}, fmt.Errorf("anisette: encode get_headers request: %w", err)
	}

	endpoint := httpBaseURL(p.AnisetteURL) + "/v3/get_headers"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Data{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return Data{}, fmt.Errorf("anisette: get_headers request: %w", err)
	}
	defer resp.Body.Close()

	var decoded getHeadersResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Data{}, fmt.Errorf("anisette: decode get_headers response: %w", err)
	}

	if decoded.Result != "Headers" {
		return Data{}, &HeadersError{Message: decoded.Message}
	}

	return Data{
		MachineID:              decoded.XAppleIMDM,
		OneTimePassword:        decoded.XAppleIMD,
		RoutingInfo:            decoded.XAppleIMDRINFO,
		DeviceUniqueIdentifier: p.state.DeviceUUID(),
		LocalUserID:            fmt.Sprintf("%x", p.state.LocalUserID()),
		GeneratedAt:            p.now(),
	}, nil
}

func (p *RemoteV3Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func httpBaseURL(anisetteURL string) string {
	return anisetteURL
}
