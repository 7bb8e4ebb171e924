package anisette

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"github.com/nab138/isideload/internal/plistutil"
)

// State is the persistent device identity anisette provisioning produces.
// KeychainIdentifier is generated once and never mutated; AdiPB transitions
// from nil to set exactly once, via Provision.
type State struct {
	KeychainIdentifier [16]byte
	AdiPB              []byte
}

// NewState generates a fresh, unprovisioned device identity.
func NewState() (*State, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, fmt.Errorf("anisette: generate keychain identifier: %w", err)
	}
	return &State{KeychainIdentifier: id}, nil
}

// Provisioned reports whether AdiPB has been set by a successful
// provisioning run.
func (s *State) Provisioned() bool {
	return s != nil && len(s.AdiPB) > 0
}

// DeviceUUID returns the canonical UUID string form of the keychain
// identifier. It is stable across process restarts and serialization
// round-trips because KeychainIdentifier never changes after creation.
func (s *State) DeviceUUID() string {
	return uuid.UUID(s.KeychainIdentifier).String()
}

// LocalUserID returns md_lu, the SHA-256 of the keychain identifier used
// as a stable local-user identifier in anisette headers.
func (s *State) LocalUserID() []byte {
	sum := sha256.Sum256(s.KeychainIdentifier[:])
	return sum[:]
}

// MarshalPlist serializes State as the XML-plist blob persisted under the
// anisette_state key: a dictionary with a keychain_identifier data field
// and an optional adi_pb data field.
func (s *State) MarshalPlist() ([]byte, error) {
	d := plistutil.Dict{"keychain_identifier": append([]byte(nil), s.KeychainIdentifier[:]...)}
	if len(s.AdiPB) > 0 {
		d["adi_pb"] = append([]byte(nil), s.AdiPB...)
	}
	return plistutil.WriteXML(d)
}

// UnmarshalState decodes a previously persisted anisette_state blob.
func UnmarshalState(data []byte) (*State, error) {
	d, err := plistutil.ParseXML(data)
	if err != nil {
		return nil, fmt.Errorf("anisette: decode state: %w", err)
	}
	idBytes, err := plistutil.GetData(d, "keychain_identifier")
	if err != nil {
		return nil, fmt.Errorf("anisette: decode state: %w", err)
	}
	if len(idBytes) != 16 {
		return nil, fmt.Errorf("anisette: decode state: keychain_identifier has length %d, want 16", len(idBytes))
	}
	s := &State{}
	copy(s.KeychainIdentifier[:], idBytes)
	if adiPB, err := plistutil.GetData(d, "adi_pb"); err == nil {
		s.AdiPB = adiPB
	}
	return s, nil
}
