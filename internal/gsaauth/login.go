package gsaauth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/nab138/isideload/internal/grandslam"
	"github.com/nab138/isideload/internal/plistutil"
)

// srpProtocolVersion is the fixed Header.Version every GrandSlam request
// carries (§4.3).
const srpProtocolVersion = "1.0.1"

// runSRP performs one full SRP-6a init+complete exchange and updates the
// account's state and SPD from the result (§4.3).
func (a *Account) runSRP(ctx context.Context, password string) error {
	data, err := a.anisette.Data(ctx)
	if err != nil {
		return fmt.Errorf("gsaauth: get anisette data for login: %w", err)
	}

	urlBag, err := a.gs.URLBag(ctx)
	if err != nil {
		return fmt.Errorf("gsaauth: fetch url bag: %w", err)
	}
	gsServiceURL, ok := urlBag["gsService"]
	if !ok {
		return &ParseProtocolError{Path: "urls.gsService", Reason: "missing from url bag"}
	}

	cpd := buildCPD(data)

	session, err := newSRPSession()
	if err != nil {
		return err
	}

	initResp, err := a.sendInitRequest(ctx, gsServiceURL, session, cpd)
	if err != nil {
		return err
	}

	salt, err := plistutil.GetData(initResp, "s")
	if err != nil {
		return &ParseProtocolError{Path: "s", Reason: err.Error()}
	}
	serverB, err := plistutil.GetData(initResp, "B")
	if err != nil {
		return &ParseProtocolError{Path: "B", Reason: err.Error()}
	}
	iterations, err := plistutil.GetSignedInteger(initResp, "i")
	if err != nil {
		return &ParseProtocolError{Path: "i", Reason: err.Error()}
	}
	cookie, err := plistutil.GetString(initResp, "c")
	if err != nil {
		return &ParseProtocolError{Path: "c", Reason: err.Error()}
	}
	selectedProtocol, err := plistutil.GetString(initResp, "sp")
	if err != nil {
		return &ParseProtocolError{Path: "sp", Reason: err.Error()}
	}
	if selectedProtocol != "s2k" && selectedProtocol != "s2k_fo" {
		return fmt.Errorf("gsaauth: unsupported srp protocol %q selected by server", selectedProtocol)
	}

	derivedPassword, err := deriveSRPPassword(password, selectedProtocol, salt, int(iterations))
	if err != nil {
		return err
	}

	proof, err := session.processServerReply(a.Email, derivedPassword, salt, serverB)
	if err != nil {
		return err
	}

	completeResp, err := a.sendCompleteRequest(ctx, gsServiceURL, proof.M1, cookie, cpd)
	if err != nil {
		return err
	}

	m2, err := plistutil.GetData(completeResp, "M2")
	if err != nil {
		return &ParseProtocolError{Path: "M2", Reason: err.Error()}
	}
	if !bytes.Equal(m2, proof.ExpectedM2) {
		return &NegotiationError{Reason: "server proof mismatch"}
	}

	spdEncrypted, err := plistutil.GetData(completeResp, "spd")
	if err != nil {
		return &ParseProtocolError{Path: "spd", Reason: err.Error()}
	}
	spdPlain, err := decryptSPD(proof.K, spdEncrypted)
	if err != nil {
		return err
	}
	spd, err := plistutil.ParseXML(spdPlain)
	if err != nil {
		return &ParseProtocolError{Path: "spd", Reason: err.Error()}
	}
	a.spd = spd

	status, err := plistutil.GetDict(completeResp, "Status")
	if err != nil {
		a.state = StateLoggedIn
		return nil
	}
	au, err := plistutil.OptString(status, "au")
	if err != nil || au == "" {
		a.state = StateLoggedIn
		return nil
	}

	switch au {
	case "trustedDeviceSecondaryAuth":
		a.state = StateNeedsDevice2FA
	case "secondaryAuth":
		a.state = StateNeedsSMS2FA
	case "repair":
		a.state = StateLoggedIn
	default:
		a.state = StateNeedsExtraStep
		a.extraStep = au
	}
	return nil
}

func (a *Account) sendInitRequest(ctx context.Context, gsServiceURL string, session *srpSession, cpd map[string]string) (plistutil.Dict, error) {
	req := plistutil.Dict{
		"Header": plistutil.Dict{"Version": srpProtocolVersion},
		"Request": plistutil.Dict{
			"A2k": session.A.Bytes(),
			"cpd": cpdAsDict(cpd),
			"o":   "init",
			"ps":  []string{"s2k", "s2k_fo"},
			"u":   a.Email,
		},
	}

	resp, err := a.gs.PlistRequest(ctx, gsServiceURL, req, nil, false)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: srp init request: %w", err)
	}
	if err := grandslam.CheckError(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *Account) sendCompleteRequest(ctx context.Context, gsServiceURL string, m1 []byte, cookie string, cpd map[string]string) (plistutil.Dict, error) {
	req := plistutil.Dict{
		"Header": plistutil.Dict{"Version": srpProtocolVersion},
		"Request": plistutil.Dict{
			"M1":  m1,
			"c":   cookie,
			"cpd": cpdAsDict(cpd),
			"o":   "complete",
			"u":   a.Email,
		},
	}

	closeHeaders := http.Header{}
	closeHeaders.Set("Connection", "close")

	resp, err := a.gs.PlistRequest(ctx, gsServiceURL, req, closeHeaders, false)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: srp complete request: %w", err)
	}
	if err := grandslam.CheckError(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
