package gsaauth

import (
	"context"
	"errors"
	"testing"

	"github.com/nab138/isideload/internal/plistutil"
)

func TestRequireSPDBeforeLogin(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	if a.LoggedIn() {
		t.Fatal("fresh account reports LoggedIn")
	}
	if _, _, err := a.GetName(); !errors.As(err, new(*NotLoggedInError)) {
		t.Fatalf("GetName before login: got %v, want *NotLoggedInError", err)
	}
}

func TestGetNameAndPET(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.spd = plistutil.Dict{
		"fn": "Ada",
		"ln": "Lovelace",
		"t": plistutil.Dict{
			"com.apple.gs.idms.pet": plistutil.Dict{"token": "pet-token-value"},
		},
	}

	first, last, err := a.GetName()
	if err != nil {
		t.Fatalf("GetName: %v", err)
	}
	if first != "Ada" || last != "Lovelace" {
		t.Fatalf("GetName = %q %q", first, last)
	}

	pet, err := a.GetPET()
	if err != nil {
		t.Fatalf("GetPET: %v", err)
	}
	if pet != "pet-token-value" {
		t.Fatalf("GetPET = %q", pet)
	}
}

func TestGetPETAbsentIsNotAnError(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.spd = plistutil.Dict{"fn": "Ada", "ln": "Lovelace"}

	pet, err := a.GetPET()
	if err != nil {
		t.Fatalf("GetPET: %v", err)
	}
	if pet != "" {
		t.Fatalf("GetPET = %q, want empty", pet)
	}
}

func TestSessionKeyAndCookie(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.spd = plistutil.Dict{
		"adsid":       "12345",
		"GsIdmsToken": "token-value",
		"sk":          []byte("0123456789abcdef0123456789abcdef"),
		"c":           []byte("cookie-bytes"),
	}

	if id, err := a.adsID(); err != nil || id != "12345" {
		t.Fatalf("adsID: %q, %v", id, err)
	}
	if tok, err := a.idmsToken(); err != nil || tok != "token-value" {
		t.Fatalf("idmsToken: %q, %v", tok, err)
	}
	if sk, err := a.sessionKey(); err != nil || string(sk) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("sessionKey: %q, %v", sk, err)
	}
	if c, err := a.cookie(); err != nil || string(c) != "cookie-bytes" {
		t.Fatalf("cookie: %q, %v", c, err)
	}
}

func TestLoginExtraStepWithoutPETFails(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.spd = plistutil.Dict{"fn": "Ada", "ln": "Lovelace"}
	a.state = StateNeedsExtraStep
	a.extraStep = "someUnknownStep"

	err := a.Login(context.Background(), "password", nil)
	var stepErr *ExtraStepRequiredError
	if !errors.As(err, &stepErr) {
		t.Fatalf("Login: got %v, want *ExtraStepRequiredError", err)
	}
	if stepErr.Step != "someUnknownStep" {
		t.Fatalf("Step = %q", stepErr.Step)
	}
}

func TestLoginExtraStepWithPETSucceeds(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.spd = plistutil.Dict{
		"t": plistutil.Dict{
			"com.apple.gs.idms.pet": plistutil.Dict{"token": "pet-token-value"},
		},
	}
	a.state = StateNeedsExtraStep
	a.extraStep = "repair"

	if err := a.Login(context.Background(), "password", nil); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if a.State() != StateLoggedIn {
		t.Fatalf("State = %v, want StateLoggedIn", a.State())
	}
}

func TestLoginAlreadyLoggedInIsNoop(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.state = StateLoggedIn

	if err := a.Login(context.Background(), "password", nil); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLoginUnknownStateErrors(t *testing.T) {
	a := New("user@example.com", nil, nil, false)
	a.state = LoginState("not-a-real-state")

	if err := a.Login(context.Background(), "password", nil); err == nil {
		t.Fatal("expected error for unknown login state")
	}
}
