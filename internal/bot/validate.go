package bot

import (
	"regexp"
	"strings"
	"time"
)

var (
	passportRe  = regexp.MustCompile(`^[A-Z]{2}\d{7}$`)
	birthdateRe = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`) // dd.mm.yyyy
	spaceRe     = regexp.MustCompile(`\s+`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

func normalizePassport(s string) string {
	return spaceRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
}

func validPassport(s string) bool {
	return passportRe.MatchString(s)
}

// validBirthdate requires dd.mm.yyyy and a real calendar date (no 31.02).
func validBirthdate(s string) bool {
	if !birthdateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("02.01.2006", s)
	return err == nil
}

func allDigits(s string) bool {
	return digitsRe.MatchString(s)
}
