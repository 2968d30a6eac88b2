package bot

import "testing"

func TestNormalizePassport(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ad1234567", "AD1234567"},
		{" AD 1234567 ", "AD1234567"},
		{"ad\t123 4567", "AD1234567"},
	}
	for _, tc := range cases {
		if got := normalizePassport(tc.in); got != tc.want {
			t.Errorf("normalizePassport(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidPassport(t *testing.T) {
	valid := []string{"AD1234567", "AB0000001"}
	for _, s := range valid {
		if !validPassport(s) {
			t.Errorf("validPassport(%q) = false", s)
		}
	}
	invalid := []string{"", "AD123456", "AD12345678", "A11234567", "ad1234567", "AD123456X"}
	for _, s := range invalid {
		if validPassport(s) {
			t.Errorf("validPassport(%q) = true", s)
		}
	}
}

func TestValidBirthdate(t *testing.T) {
	valid := []string{"30.09.2005", "01.01.1970", "29.02.2004"}
	for _, s := range valid {
		if !validBirthdate(s) {
			t.Errorf("validBirthdate(%q) = false", s)
		}
	}
	invalid := []string{"", "3.9.2005", "30-09-2005", "31.02.2005", "29.02.2005", "30.13.2005"}
	for _, s := range invalid {
		if validBirthdate(s) {
			t.Errorf("validBirthdate(%q) = true", s)
		}
	}
}

func TestAllDigits(t *testing.T) {
	if !allDigits("123456789") {
		t.Error("digits rejected")
	}
	for _, s := range []string{"", "12a34", " 123", "-123"} {
		if allDigits(s) {
			t.Errorf("allDigits(%q) = true", s)
		}
	}
}
