package anisette

import (
	"net/http"
	"time"
)

// headerTTL is how long a derived AnisetteData snapshot stays valid before
// the generator re-requests headers (§3, §4.1 renewal policy).
const headerTTL = 60 * time.Second

// Data is a per-request attestation snapshot.
type Data struct {
	MachineID              string
	OneTimePassword        string
	RoutingInfo            string
	DeviceDescription      string
	DeviceUniqueIdentifier string
	LocalUserID            string
	GeneratedAt            time.Time
}

// Stale reports whether Data is older than headerTTL as of now.
func (d Data) Stale(now time.Time) bool {
	return now.Sub(d.GeneratedAt) >= headerTTL
}

// Headers renders Data as the anisette portion of an outgoing GSA request
// (§6's header table).
func (d Data) Headers() http.Header {
	h := make(http.Header)
	h.Set("X-Apple-I-MD-M", d.MachineID)
	h.Set("X-Apple-I-MD", d.OneTimePassword)
	h.Set("X-Apple-I-MD-RINFO", d.RoutingInfo)
	h.Set("X-Mme-Device-Id", d.DeviceUniqueIdentifier)
	return h
}

// ClientInfo is the advisory client-info/user-agent pair the anisette
// service supplies, echoed verbatim in GSA headers.
type ClientInfo struct {
	ClientInfo string
	UserAgent  string
}
