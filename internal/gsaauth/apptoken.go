package gsaauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/nab138/isideload/internal/grandslam"
	"github.com/nab138/isideload/internal/plistutil"
)

// appTokenMagic is the 3-byte prefix an encrypted app-token bag must carry
// (§4.5 step 5).
var appTokenMagic = []byte("XYZ")

const appTokenIVLen = 16

// AppToken is the decrypted per-app credential (§3).
type AppToken struct {
	Token    string
	Duration uint64
	Expiry   uint64
}

// GetAppToken fetches and decrypts the app token for the given app name
// (§4.5). app may already carry the "com.apple.gs." prefix; if not, it is
// prepended.
func (a *Account) GetAppToken(ctx context.Context, app string) (*AppToken, error) {
	if !strings.Contains(app, "com.apple.gs.") {
		app = "com.apple.gs." + app
	}

	adsid, err := a.adsID()
	if err != nil {
		return nil, err
	}
	idmsToken, err := a.idmsToken()
	if err != nil {
		return nil, err
	}
	sessionKey, err := a.sessionKey()
	if err != nil {
		return nil, err
	}
	cookie, err := a.cookie()
	if err != nil {
		return nil, err
	}

	checksum := computeAppTokenChecksum(sessionKey, adsid, app)

	data, err := a.anisette.Data(ctx)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: get anisette data for app token: %w", err)
	}
	cpd := buildCPD(data)

	urlBag, err := a.gs.URLBag(ctx)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: fetch url bag: %w", err)
	}
	gsServiceURL, ok := urlBag["gsService"]
	if !ok {
		return nil, &ParseProtocolError{Path: "urls.gsService", Reason: "missing from url bag"}
	}

	req := plistutil.Dict{
		"Header": plistutil.Dict{"Version": srpProtocolVersion},
		"Request": plistutil.Dict{
			"app":      []string{app},
			"c":        cookie,
			"checksum": checksum,
			"cpd":      cpdAsDict(cpd),
			"o":        "apptokens",
			"u":        adsid,
			"t":        idmsToken,
		},
	}

	resp, err := a.gs.PlistRequest(ctx, gsServiceURL, req, nil, false)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: app token request: %w", err)
	}
	if err := grandslam.CheckError(resp); err != nil {
		return nil, err
	}

	encryptedToken, err := plistutil.GetData(resp, "et")
	if err != nil {
		return nil, &ParseProtocolError{Path: "et", Reason: err.Error()}
	}

	plain, err := decodeAndDecryptAppToken(encryptedToken, sessionKey)
	if err != nil {
		return nil, err
	}

	doc, err := plistutil.ParseXML(plain)
	if err != nil {
		return nil, &ParseProtocolError{Path: "app token plist", Reason: err.Error()}
	}

	status, err := plistutil.GetSignedInteger(doc, "status-code")
	if err != nil {
		return nil, &ParseProtocolError{Path: "status-code", Reason: err.Error()}
	}
	if status != 200 {
		return nil, fmt.Errorf("gsaauth: app token request returned status-code %d", status)
	}

	tokens, err := plistutil.GetDict(doc, "t")
	if err != nil {
		return nil, &ParseProtocolError{Path: "t", Reason: err.Error()}
	}
	appDict, err := plistutil.GetDict(tokens, app)
	if err != nil {
		return nil, &ParseProtocolError{Path: "t." + app, Reason: err.Error()}
	}

	token, err := plistutil.GetString(appDict, "token")
	if err != nil {
		return nil, &ParseProtocolError{Path: "t." + app + ".token", Reason: err.Error()}
	}
	duration, err := plistutil.GetSignedInteger(appDict, "duration")
	if err != nil {
		return nil, &ParseProtocolError{Path: "t." + app + ".duration", Reason: err.Error()}
	}
	expiry, err := plistutil.GetSignedInteger(appDict, "expiry")
	if err != nil {
		return nil, &ParseProtocolError{Path: "t." + app + ".expiry", Reason: err.Error()}
	}

	return &AppToken{Token: token, Duration: uint64(duration), Expiry: uint64(expiry)}, nil
}

func computeAppTokenChecksum(sessionKey []byte, adsid, app string) []byte {
	mac := hmac.New(sha256.New, sessionKey)
	mac.Write([]byte("apptokens"))
	mac.Write([]byte(adsid))
	mac.Write([]byte(app))
	return mac.Sum(nil)
}

// decodeAndDecryptAppToken validates and unwraps the et blob layout:
// 3-byte magic + 16-byte IV + AES-256-GCM ciphertext-with-tag (§4.5,
// §8 boundaries).
func decodeAndDecryptAppToken(et, sessionKey []byte) ([]byte, error) {
	minLen := len(appTokenMagic) + appTokenIVLen + 16
	if len(et) < minLen {
		return nil, &ParseProtocolError{Path: "et", Reason: fmt.Sprintf("app token blob too short: %d bytes", len(et))}
	}

	magic := et[:len(appTokenMagic)]
	if string(magic) != string(appTokenMagic) {
		return nil, &grandslam.Error{Code: 0, Message: "unknown format"}
	}

	iv := et[len(appTokenMagic) : len(appTokenMagic)+appTokenIVLen]
	ciphertext := et[len(appTokenMagic)+appTokenIVLen:]

	if len(sessionKey) != 32 {
		return nil, fmt.Errorf("gsaauth: app token session key has length %d, want 32", len(sessionKey))
	}

	return decryptAppToken(sessionKey, iv, magic, ciphertext)
}
