package logger

import "strings"

// RedactEmail keeps the first two characters of the local part and the
// domain, e.g. jo***@example.com. Local parts of two characters or fewer are
// masked entirely.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	name, domain := email[:at], email[at+1:]
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
