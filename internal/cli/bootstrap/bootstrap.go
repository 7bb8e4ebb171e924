// Package bootstrap wires the anisette provider, storage backend, and
// GrandSlam client together into an Account, the way every isideload
// subcommand that talks to Apple's identity service needs to.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/nab138/isideload/internal/anisette"
	"github.com/nab138/isideload/internal/gsaauth"
)

// DefaultAnisetteURL is the public v3 anisette server used when the caller
// doesn't override it with --anisette-url.
const DefaultAnisetteURL = "https://ani.sidestore.io"

// NewAccount builds an anisette generator against anisetteURL, then an
// Account for email against it. The GrandSlam client's URL bag is wired
// back into the anisette provider once it exists, closing the
// construction-order cycle documented on anisette.LazyURLBag.
func NewAccount(ctx context.Context, anisetteURL, email string, debug bool) (*gsaauth.Account, error) {
	if anisetteURL == "" {
		anisetteURL = DefaultAnisetteURL
	}

	storage, err := anisette.NewDefaultStorage()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open anisette storage: %w", err)
	}

	lazy := &anisette.LazyURLBag{}
	provider, err := anisette.NewRemoteV3Provider(ctx, anisetteURL, lazy.Resolve, storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build anisette provider: %w", err)
	}
	gen := anisette.NewGenerator(provider)

	account, err := gsaauth.NewWithAnisette(ctx, email, gen, debug)
	if err != nil {
		return nil, err
	}
	lazy.Set(account.GrandSlamClient().URLBag)

	return account, nil
}
