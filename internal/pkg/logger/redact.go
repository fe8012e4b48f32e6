package logger

import (
	"net/url"
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(password=)\S+`)

// RedactDSN masks the password of a connection string for safe logging.
// "postgres://app:s3cret@db:5432/rtb" → "postgres://app:***@db:5432/rtb"
// Key/value DSNs ("host=db password=s3cret") are masked too.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			return strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
		}
		return dsn
	}
	return dsnPasswordRegex.ReplaceAllString(dsn, "${1}***")
}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "password"), strings.Contains(key, "secret"), strings.Contains(key, "token"):
		return "***"
	case strings.Contains(key, "dsn"), strings.Contains(key, "database_url"), strings.Contains(key, "redis_url"):
		return RedactDSN(val)
	}
	return val
}
