package gsaauth

import "github.com/nab138/isideload/internal/anisette"

// buildCPD assembles the "client provided data" dictionary sent in both
// SRP requests: the anisette header triple plus Apple's fixed literal
// fields, all as strings (§4.3).
func buildCPD(data anisette.Data) map[string]string {
	return map[string]string{
		"bootstrap": "true",
		"icscrec":   "true",
		"loc":       "en_US",
		"pbe":       "false",
		"prkgen":    "true",
		"svct":      "iCloud",

		"X-Mme-Device-Id": data.DeviceUniqueIdentifier,
		"X-Apple-I-MD":    data.OneTimePassword,
		"X-Apple-I-MD-M":  data.MachineID,
	}
}

func cpdAsDict(cpd map[string]string) map[string]any {
	out := make(map[string]any, len(cpd))
	for k, v := range cpd {
		out[k] = v
	}
	return out
}
