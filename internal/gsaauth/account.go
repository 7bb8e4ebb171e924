package gsaauth

import (
	"context"
	"fmt"

	"github.com/nab138/isideload/internal/anisette"
	"github.com/nab138/isideload/internal/grandslam"
	"github.com/nab138/isideload/internal/plistutil"
)

// LoginState is the tagged state Account transitions through during login
// (§3, §4.4).
type LoginState string

const (
	StateNeedsLogin     LoginState = "NeedsLogin"
	StateNeedsDevice2FA LoginState = "NeedsDevice2FA"
	StateNeedsSMS2FA    LoginState = "NeedsSMS2FA"
	StateNeedsExtraStep LoginState = "NeedsExtraStep"
	StateLoggedIn       LoginState = "LoggedIn"
)

// maxLoginAttempts bounds the 2FA state machine loop (§4.4, §8 boundary).
const maxLoginAttempts = 10

// TwoFactorCallback is invoked by the 2FA state machine to obtain a
// user-entered verification code. An empty return value is treated as
// No2FACodeProvided.
type TwoFactorCallback func(ctx context.Context) (string, error)

// Account is the top-level authenticated identity: an Apple ID plus the
// GrandSlam and anisette handles it authenticates through.
type Account struct {
	Email string

	gs        *grandslam.Client
	anisette  *anisette.Generator
	debug     bool

	state     LoginState
	extraStep string
	spd       plistutil.Dict
}

// New constructs an unauthenticated Account. SPD is filled in by Login.
func New(email string, gs *grandslam.Client, anisetteGen *anisette.Generator, debug bool) *Account {
	return &Account{
		Email:    email,
		gs:       gs,
		anisette: anisetteGen,
		debug:    debug,
		state:    StateNeedsLogin,
	}
}

// NewWithAnisette builds a GrandSlam client from the anisette generator's
// client info, then constructs an Account against it. This is the usual
// entry point; New is available for callers that already have a shared
// *grandslam.Client.
func NewWithAnisette(ctx context.Context, email string, anisetteGen *anisette.Generator, debug bool) (*Account, error) {
	info, err := anisetteGen.ClientInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: get anisette client info: %w", err)
	}
	gs, err := grandslam.NewClient(grandslam.ClientInfo{ClientInfo: info.ClientInfo, UserAgent: info.UserAgent}, debug)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: build grandslam client: %w", err)
	}
	return New(email, gs, anisetteGen, debug), nil
}

// GrandSlamClient returns the account's underlying GrandSlam envelope
// client, for callers that need to wire it elsewhere (e.g. completing an
// anisette.LazyURLBag).
func (a *Account) GrandSlamClient() *grandslam.Client { return a.gs }

// State returns the account's current login state.
func (a *Account) State() LoginState { return a.state }

// LoggedIn reports whether SPD has been populated by a successful login.
func (a *Account) LoggedIn() bool { return a.spd != nil }

// requireSPD returns SPD or NotLoggedInError if login hasn't completed.
func (a *Account) requireSPD() (plistutil.Dict, error) {
	if a.spd == nil {
		return nil, &NotLoggedInError{}
	}
	return a.spd, nil
}

// GetName returns the SPD's first/last name fields.
func (a *Account) GetName() (first, last string, err error) {
	spd, err := a.requireSPD()
	if err != nil {
		return "", "", err
	}
	first, _ = plistutil.OptString(spd, "fn")
	last, _ = plistutil.OptString(spd, "ln")
	return first, last, nil
}

// GetPET returns the PET (Private Enhanced Token) under
// SPD.t["com.apple.gs.idms.pet"].token, if present.
func (a *Account) GetPET() (string, error) {
	spd, err := a.requireSPD()
	if err != nil {
		return "", err
	}
	tokens, err := plistutil.GetDict(spd, "t")
	if err != nil {
		return "", nil
	}
	pet, err := plistutil.GetDict(tokens, "com.apple.gs.idms.pet")
	if err != nil {
		return "", nil
	}
	return plistutil.OptString(pet, "token")
}

// adsID returns SPD's account identifier.
func (a *Account) adsID() (string, error) {
	spd, err := a.requireSPD()
	if err != nil {
		return "", err
	}
	return plistutil.GetString(spd, "adsid")
}

// idmsToken returns SPD's GsIdmsToken.
func (a *Account) idmsToken() (string, error) {
	spd, err := a.requireSPD()
	if err != nil {
		return "", err
	}
	return plistutil.GetString(spd, "GsIdmsToken")
}

// sessionKey returns SPD's 32-byte session key sk.
func (a *Account) sessionKey() ([]byte, error) {
	spd, err := a.requireSPD()
	if err != nil {
		return nil, err
	}
	sk, err := plistutil.GetData(spd, "sk")
	if err != nil {
		return nil, err
	}
	return sk, nil
}

// cookie returns SPD's opaque cookie bytes c.
func (a *Account) cookie() ([]byte, error) {
	spd, err := a.requireSPD()
	if err != nil {
		return nil, err
	}
	return plistutil.GetData(spd, "c")
}

// Login drives the 2FA state machine to completion (§4.4), bounded at
// maxLoginAttempts transitions.
func (a *Account) Login(ctx context.Context, password string, twoFactor TwoFactorCallback) error {
	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		switch a.state {
		case StateNeedsLogin:
			if err := a.runSRP(ctx, password); err != nil {
				return err
			}
		case StateNeedsDevice2FA:
			if err := a.trustedDevice2FA(ctx, twoFactor); err != nil {
				return err
			}
			a.state = StateNeedsLogin
		case StateNeedsSMS2FA:
			if err := a.sms2FA(ctx, twoFactor); err != nil {
				return err
			}
			a.state = StateNeedsLogin
		case StateNeedsExtraStep:
			pet, petErr := a.GetPET()
			if petErr == nil && pet != "" {
				a.state = StateLoggedIn
				continue
			}
			return &ExtraStepRequiredError{Step: a.extraStep}
		case StateLoggedIn:
			return nil
		default:
			return fmt.Errorf("gsaauth: unknown login state %q", a.state)
		}
	}
	return &MaxLoginAttemptsError{Attempts: maxLoginAttempts}
}
