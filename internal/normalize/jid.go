package normalize

import "strings"

const (
	brazilCountryCode = "55"
	minBrazilDigits   = 12
	mobilePrefix      = "9"
)

// JID unifies legacy 8-digit and 9-digit Brazilian mobile numbers so both
// forms of a number map to the same chat. Anything that is not
// <digits>@<domain> with a "55" prefix of at least 12 digits is returned as is.
func JID(jid string) string {
	local, domain, ok := strings.Cut(jid, "@")
	if !ok || !isDigits(local) {
		return jid
	}
	if !strings.HasPrefix(local, brazilCountryCode) || len(local) < minBrazilDigits {
		return jid
	}

	country, area, rest := local[:2], local[2:4], local[4:]
	if !strings.HasPrefix(rest, mobilePrefix) {
		rest = mobilePrefix + rest
	}
	return country + area + rest + "@" + domain
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
