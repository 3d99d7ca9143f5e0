package backends

import (
	"net/url"
	"strings"
)

// Redact hides the password of an endpoint URI so it can be logged. Endpoints that
// are not valid URLs, such as a Kafka bootstrap list, are redacted by hand.
func Redact(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		if u.User == nil {
			return endpoint
		}
		return u.Redacted()
	}

	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok {
		return endpoint
	}
	end := strings.IndexAny(rest, "/?")
	if end < 0 {
		end = len(rest)
	}
	at := strings.LastIndex(rest[:end], "@")
	if at < 0 {
		return endpoint
	}
	user, _, hasPassword := strings.Cut(rest[:at], ":")
	if !hasPassword {
		return endpoint
	}
	return scheme + "://" + user + ":xxxxx" + rest[at:]
}
