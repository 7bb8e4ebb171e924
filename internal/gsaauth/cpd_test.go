package gsaauth

import (
	"testing"

	"github.com/nab138/isideload/internal/anisette"
)

func TestBuildCPDIncludesAnisetteHeaderTriple(t *testing.T) {
	data := anisette.Data{
		DeviceUniqueIdentifier: "device-uuid",
		OneTimePassword:        "otp-value",
		MachineID:              "machine-id",
	}

	cpd := buildCPD(data)
	if cpd["X-Mme-Device-Id"] != "device-uuid" {
		t.Fatalf("X-Mme-Device-Id = %q", cpd["X-Mme-Device-Id"])
	}
	if cpd["X-Apple-I-MD"] != "otp-value" {
		t.Fatalf("X-Apple-I-MD = %q", cpd["X-Apple-I-MD"])
	}
	if cpd["X-Apple-I-MD-M"] != "machine-id" {
		t.Fatalf("X-Apple-I-MD-M = %q", cpd["X-Apple-I-MD-M"])
	}
	if cpd["svct"] != "iCloud" {
		t.Fatalf("svct = %q", cpd["svct"])
	}
}

func TestCPDAsDictPreservesAllEntries(t *testing.T) {
	cpd := map[string]string{"a": "1", "b": "2"}
	out := cpdAsDict(cpd)
	if len(out) != len(cpd) {
		t.Fatalf("cpdAsDict length = %d, want %d", len(out), len(cpd))
	}
	for k, v := range cpd {
		if out[k] != v {
			t.Fatalf("cpdAsDict[%q] = %v, want %q", k, out[k], v)
		}
	}
}
