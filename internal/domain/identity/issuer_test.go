package identity

import (
	"regexp"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		kind  Kind
		want  bool
	}{
		{"patient id", "12345678", KindPatientID, true},
		{"patient id with leading zeros", "00000042", KindPatientID, true},
		{"patient id too short", "1234567", KindPatientID, false},
		{"patient id too long", "123456789", KindPatientID, false},
		{"patient id with letters", "1234567a", KindPatientID, false},
		{"patient id with spaces", " 12345678", KindPatientID, false},
		{"portal id", "TSH 123-456", KindPortalID, true},
		{"portal id all zeros", "TSH 000-000", KindPortalID, true},
		{"portal id lowercase prefix", "tsh 123-456", KindPortalID, false},
		{"portal id missing space", "TSH123-456", KindPortalID, false},
		{"portal id missing dash", "TSH 123456", KindPortalID, false},
		{"portal id trailing garbage", "TSH 123-456x", KindPortalID, false},
		{"empty value", "", KindPatientID, false},
		{"unknown kind", "12345678", Kind("ssn"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.value, tt.kind); got != tt.want {
				t.Errorf("Validate(%q, %q) = %v, want %v", tt.value, tt.kind, got, tt.want)
			}
		})
	}
}

func TestRandomIssuer_Formats(t *testing.T) {
	issuer := NewRandomIssuer()
	patientRe := regexp.MustCompile(`^[0-9]{8}$`)
	portalRe := regexp.MustCompile(`^TSH [0-9]{3}-[0-9]{3}$`)

	for i := 0; i < 200; i++ {
		pid, err := issuer.MintPatientID()
		if err != nil {
			t.Fatalf("MintPatientID: %v", err)
		}
		if !patientRe.MatchString(pid) {
			t.Fatalf("minted patient id %q is malformed", pid)
		}

		por, err := issuer.MintPortalID()
		if err != nil {
			t.Fatalf("MintPortalID: %v", err)
		}
		if !portalRe.MatchString(por) {
			t.Fatalf("minted portal id %q is malformed", por)
		}
	}
}

func TestFormatPortalID(t *testing.T) {
	if got := FormatPortalID("042137"); got != "TSH 042-137" {
		t.Errorf("FormatPortalID = %q", got)
	}
}
