package anisette

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nab138/isideload/internal/gsalog"
)

// URLBagFunc resolves well-known GSA endpoint names to URLs. RemoteV3Provider
// uses it to find midStartProvisioning/midFinishProvisioning without
// importing the grandslam package directly.
type URLBagFunc func(ctx context.Context) (map[string]string, error)

// LazyURLBag breaks the construction-order cycle between a RemoteV3Provider
// (which needs a URLBagFunc before its GrandSlam client exists, since
// client-info comes from the provider) and that GrandSlam client (which
// needs the provider's client-info to be built in the first place).
// Callers pass LazyURLBag.Resolve as the provider's URLBagFunc, build their
// GrandSlam client once ClientInfo is known, then call Set.
type LazyURLBag struct {
	mu       sync.RWMutex
	resolver URLBagFunc
}

// Set wires the real resolver once it becomes available.
func (l *LazyURLBag) Set(resolver URLBagFunc) {
	l.mu.Lock()
	l.resolver = resolver
	l.mu.Unlock()
}

// Resolve forwards to whatever resolver Set last installed.
func (l *LazyURLBag) Resolve(ctx context.Context) (map[string]string, error) {
	l.mu.RLock()
	resolver := l.resolver
	l.mu.RUnlock()
	if resolver == nil {
		return nil, fmt.Errorf("anisette: url bag requested before grandslam client was wired")
	}
	return resolver(ctx)
}

// RemoteV3Provider is the one concrete Provider variant: anisette served
// over HTTPS/WebSocket by a v3-protocol anisette server (§4.1, §9).
type RemoteV3Provider struct {
	AnisetteURL string
	URLBag      URLBagFunc
	Storage     Storage

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	// Now overrides time.Now for tests; nil means use the real clock.
	Now func() time.Time

	state *State

	clientInfoOnce sync.Once
	clientInfo     ClientInfo
	clientInfoErr  error
}

// NewRemoteV3Provider loads persisted state from storage, generating and
// storing a fresh one on first run or on decode failure (§4.1).
func NewRemoteV3Provider(ctx context.Context, anisetteURL string, urlBag URLBagFunc, storage Storage) (*RemoteV3Provider, error) {
	p := &RemoteV3Provider{
		AnisetteURL: anisetteURL,
		URLBag:      urlBag,
		Storage:     storage,
	}

	raw, ok, err := storage.Retrieve(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("anisette: load state: %w", err)
	}
	if ok {
		state, decodeErr := UnmarshalState(raw)
		if decodeErr != nil {
			gsalog.Default().Warnf("anisette: stored state failed to decode, regenerating: %v", decodeErr)
			ok = false
		} else {
			p.state = state
		}
	}
	if !ok {
		state, genErr := NewState()
		if genErr != nil {
			return nil, genErr
		}
		p.state = state
		if err := p.persistState(ctx); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *RemoteV3Provider) persistState(ctx context.Context) error {
	blob, err := p.state.MarshalPlist()
	if err != nil {
		return fmt.Errorf("anisette: encode state: %w", err)
	}
	if err := p.Storage.Store(ctx, StateKey, blob); err != nil {
		return fmt.Errorf("anisette: persist state: %w", err)
	}
	return nil
}

func (p *RemoteV3Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *RemoteV3Provider) dialer() *websocket.Dialer {
	if p.Dialer != nil {
		return p.Dialer
	}
	return websocket.DefaultDialer
}

// ClientInfo fetches GET /v3/client_info once and caches it for the
// lifetime of the provider (§4.1).
func (p *RemoteV3Provider) ClientInfo(ctx context.Context) (ClientInfo, error) {
	p.clientInfoOnce.Do(func() {
		p.clientInfo, p.clientInfoErr = p.fetchClientInfo(ctx)
	})
	return p.clientInfo, p.clientInfoErr
}

func (p *RemoteV3Provider) fetchClientInfo(ctx context.Context) (ClientInfo, error) {
	endpoint := httpBaseURL(p.AnisetteURL) + "/v3/client_info"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ClientInfo{}, err
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return ClientInfo{}, fmt.Errorf("anisette: client_info request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded struct {
		ClientInfo string `json:"client_info"`
		UserAgent  string `json:"user_agent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ClientInfo{}, fmt.Errorf("anisette: decode client_info response: %w", err)
	}
	return ClientInfo{ClientInfo: decoded.ClientInfo, UserAgent: decoded.UserAgent}, nil
}

// NeedsProvisioning reports whether adi_pb is still absent.
func (p *RemoteV3Provider) NeedsProvisioning() bool {
	return !p.state.Provisioned()
}

// Provision runs the WebSocket provisioning handshake. On success, state
// is persisted with adi_pb set; on failure, state is left untouched.
func (p *RemoteV3Provider) Provision(ctx context.Context) error {
	adiPB, err := p.provision(ctx)
	if err != nil {
		return err
	}
	p.state.AdiPB = adiPB
	return p.persistState(ctx)
}

// HeaderData derives a fresh AnisetteData snapshot via /v3/get_headers.
// Callers must ensure provisioning has completed first.
func (p *RemoteV3Provider) HeaderData(ctx context.Context) (Data, error) {
	if !p.state.Provisioned() {
		return Data{}, &NotProvisionedError{}
	}
	return p.fetchHeaderData(ctx)
}
