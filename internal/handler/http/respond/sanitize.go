package respond

import "regexp"

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// redactions mask credentials that platform and database errors tend to echo.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]+`), "Bearer ****"},
	{regexp.MustCompile(`(oauth_(?:signature|token|consumer_key))="?[^",&\s]+"?`), `$1="****"`},
	{regexp.MustCompile(`\b(access_token|client_secret|refresh_token)=[^&\s"]+`), "$1=****"},
	{regexp.MustCompile(`://([^:/@]+):([^@]+)@`), "://$1:****@"},
}

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replace)
	}
	return msg
}
