package anisette

import "context"

// Provider is the capability set an anisette backend must implement (§9:
// "expressed as a capability set {get_client_info, get_anisette_data,
// needs_provisioning, provision} with one concrete variant"). Generator is
// the only caller; additional providers plug in at construction, never
// through runtime discovery.
type Provider interface {
	// ClientInfo returns the advisory client-info/user-agent pair echoed
	// in GSA headers.
	ClientInfo(ctx context.Context) (ClientInfo, error)

	// NeedsProvisioning reports whether Provision must run before
	// HeaderData can succeed.
	NeedsProvisioning() bool

	// Provision runs the WebSocket provisioning handshake and persists
	// the resulting state. It does not check the current state and runs
	// the handshake even when already provisioned; callers check
	// NeedsProvisioning first.
	Provision(ctx context.Context) error

	// HeaderData derives a fresh AnisetteData snapshot. Callers needing
	// caching should go through Generator rather than call this directly.
	HeaderData(ctx context.Context) (Data, error)
}
