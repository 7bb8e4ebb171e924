package grandslam

import (
	// embed is used for go:embed below.
	_ "embed"
)

// appleRootCAPEM is Apple's published root CA certificate, pinned so the
// GrandSlam HTTP client never falls back to the system trust store for
// gsa.apple.com traffic.
//
//go:embed apple_root_ca.pem
var appleRootCAPEM []byte
