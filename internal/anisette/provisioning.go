package anisette

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nab138/isideload/internal/gsalog"
	"github.com/nab138/isideload/internal/plistutil"
)

// wsFrame is the JSON envelope every provisioning message carries, tagged
// by the "result" field (§4.1's state table).
type wsFrame struct {
	Result string `json:"result"`

	Identifier string `json:"identifier,omitempty"`

	Spim  string `json:"spim,omitempty"`
	Cpim  string `json:"cpim,omitempty"`
	Ptm   string `json:"ptm,omitempty"`
	Tk    string `json:"tk,omitempty"`
	AdiPB string `json:"adi_pb,omitempty"`

	Message string `json:"message,omitempty"`
}

// wsConn is the minimal surface provisioning needs from a websocket
// connection, satisfied by *websocket.Conn and fakeable in tests.
type wsConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

func anisetteWSURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("anisette: parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// provision drives the provisioning WebSocket state machine end to end,
// POSTing the midStartProvisioning/midFinishProvisioning plist requests in
// between, and returns the decoded adi_pb on success. It never mutates
// state itself; the caller persists it after a nil error.
func (p *RemoteV3Provider) provision(ctx context.Context) ([]byte, error) {
	wsURL, err := anisetteWSURL(p.AnisetteURL, "/v3/provisioning_session")
	if err != nil {
		return nil, err
	}

	dialer := p.dialer()
	header := http.Header{}
	header.Set("X-Apple-I-MD-LU", fmt.Sprintf("%x", p.state.LocalUserID()))
	header.Set("X-Mme-Device-Id", p.state.DeviceUUID())

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("anisette: dial provisioning websocket: %w", err)
	}
	defer conn.Close()

	gsalog.Default().Debugf("anisette: provisioning websocket connected")

	return p.runProvisioningStateMachine(ctx, conn)
}

func (p *RemoteV3Provider) runProvisioningStateMachine(ctx context.Context, conn wsConn) ([]byte, error) {
	phase := PhaseAwaitingIdentifier

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return nil, &ProvisioningError{Phase: phase, Kind: "Aborted", Message: err.Error()}
		}

		switch frame.Result {
		case "GiveIdentifier":
			phase = PhaseAwaitingStart
			if err := conn.WriteJSON(wsFrame{Identifier: base64.StdEncoding.EncodeToString(p.state.KeychainIdentifier[:])}); err != nil {
				return nil, &ProvisioningError{Phase: phase, Kind: "Aborted", Message: err.Error()}
			}

		case "GiveStartProvisioningData":
			spim, err := p.fetchStartProvisioningData(ctx)
			if err != nil {
				return nil, err
			}
			phase = PhaseAwaitingEnd
			if err := conn.WriteJSON(wsFrame{Spim: spim}); err != nil {
				return nil, &ProvisioningError{Phase: phase, Kind: "Aborted", Message: err.Error()}
			}

		case "GiveEndProvisioningData":
			ptm, tk, err := p.fetchEndProvisioningData(ctx, frame.Cpim)
			if err != nil {
				return nil, err
			}
			phase = PhaseAwaitingSuccess
			if err := conn.WriteJSON(wsFrame{Ptm: ptm, Tk: tk}); err != nil {
				return nil, &ProvisioningError{Phase: phase, Kind: "Aborted", Message: err.Error()}
			}

		case "ProvisioningSuccess":
			adiPB, err := base64.StdEncoding.DecodeString(frame.AdiPB)
			if err != nil {
				return nil, &ProvisioningError{Phase: phase, Kind: "Aborted", Message: "malformed adi_pb: " + err.Error()}
			}
			return adiPB, nil

		case "Timeout", "InvalidIdentifier", "StartProvisioningError", "EndProvisioningError":
			return nil, &ProvisioningError{Phase: phase, Kind: frame.Result, Message: frame.Message}

		default:
			return nil, &ProvisioningError{Phase: phase, Kind: "Aborted", Message: "unexpected frame: " + frame.Result}
		}
	}
}

// fetchStartProvisioningData posts the mid-start-provisioning plist
// request and returns the spim string from the response.
func (p *RemoteV3Provider) fetchStartProvisioningData(ctx context.Context) (string, error) {
	midURL, err := p.requireURLBagEntry(ctx, "midStartProvisioning")
	if err != nil {
		return "", err
	}
	resp, err := p.postPlist(ctx, midURL, plistutil.Dict{"Header": plistutil.Dict{}, "Request": plistutil.Dict{}})
	if err != nil {
		return "", &ProvisioningError{Phase: PhaseAwaitingStart, Kind: "StartProvisioningError", Message: err.Error()}
	}
	responseDict, err := plistutil.GetDict(resp, "Response")
	if err != nil {
		return "", &ProvisioningError{Phase: PhaseAwaitingStart, Kind: "StartProvisioningError", Message: err.Error()}
	}
	spim, err := plistutil.GetString(responseDict, "spim")
	if err != nil {
		return "", &ProvisioningError{Phase: PhaseAwaitingStart, Kind: "StartProvisioningError", Message: err.Error()}
	}
	return spim, nil
}

// fetchEndProvisioningData posts the mid-finish-provisioning plist
// request and returns the ptm/tk strings from the response.
func (p *RemoteV3Provider) fetchEndProvisioningData(ctx context.Context, cpim string) (ptm, tk string, err error) {
	midURL, err := p.requireURLBagEntry(ctx, "midFinishProvisioning")
	if err != nil {
		return "", "", err
	}
	resp, err := p.postPlist(ctx, midURL, plistutil.Dict{"Header": plistutil.Dict{}, "Request": plistutil.Dict{"cpim": cpim}})
	if err != nil {
		return "", "", &ProvisioningError{Phase: PhaseAwaitingEnd, Kind: "EndProvisioningError", Message: err.Error()}
	}
	responseDict, err := plistutil.GetDict(resp, "Response")
	if err != nil {
		return "", "", &ProvisioningError{Phase: PhaseAwaitingEnd, Kind: "EndProvisioningError", Message: err.Error()}
	}
	ptm, err = plistutil.GetString(responseDict, "ptm")
	if err != nil {
		return "", "", &ProvisioningError{Phase: PhaseAwaitingEnd, Kind: "EndProvisioningError", Message: err.Error()}
	}
	tk, err = plistutil.GetString(responseDict, "tk")
	if err != nil {
		return "", "", &ProvisioningError{Phase: PhaseAwaitingEnd, Kind: "EndProvisioningError", Message: err.Error()}
	}
	return ptm, tk, nil
}

func (p *RemoteV3Provider) requireURLBagEntry(ctx context.Context, name string) (string, error) {
	bag, err := p.URLBag(ctx)
	if err != nil {
		return "", fmt.Errorf("anisette: fetch url bag: %w", err)
	}
	u, ok := bag[name]
	if !ok {
		return "", fmt.Errorf("anisette: url bag missing %q entry", name)
	}
	return u, nil
}

func (p *RemoteV3Provider) postPlist(ctx context.Context, targetURL string, body plistutil.Dict) (plistutil.Dict, error) {
	payload, err := plistutil.WriteXML(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/x-xml-plist")
	req.Header.Set("X-Apple-I-MD-LU", fmt.Sprintf("%x", p.state.LocalUserID()))
	req.Header.Set("X-Mme-Device-Id", p.state.DeviceUUID())

	httpResp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("anisette: read provisioning response: %w", err)
	}

	decoded, err := plistutil.ParseXML(respBody)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
