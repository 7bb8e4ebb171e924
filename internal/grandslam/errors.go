package grandslam

import (
	"fmt"

	"github.com/nab138/isideload/internal/plistutil"
)

// Error is a GSA application-level error: the server answered with HTTP 200
// but a nonzero "ec" status inside the plist body.
type Error struct {
	Code    int64
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("grandslam error %d: %s", e.Code, e.Message)
}

// CheckError inspects a decoded Response dictionary for a nonzero "ec"
// field, checking a nested "Status" sub-dictionary first per §4.2.
func CheckError(d plistutil.Dict) error {
	status := d
	if sub, err := plistutil.GetDict(d, "Status"); err == nil {
		status = sub
	}

	code, err := plistutil.GetSignedInteger(status, "ec")
	if err != nil {
		// Absence of "ec" means the server didn't report a GSA error.
		return nil
	}
	if code == 0 {
		return nil
	}

	message, err := plistutil.GetString(status, "em")
	if err != nil || message == "" {
		message = "Unknown error"
	}
	return &Error{Code: code, Message: message}
}
