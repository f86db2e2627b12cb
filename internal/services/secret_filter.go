package services

import (
	"regexp"
	"strings"
)

// Secret redaction for anything bound for the model or the analyze cache key.
// Redaction is pure and idempotent: already-redacted text is left as is.

const redactedPlaceholder = "***REDACTED***"

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	// password=..., token: "...", api_key=... and friends
	{regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api_key|apikey)\s*[:=]\s*["']?[^\s"']+`), `$1=` + redactedPlaceholder},
	// IPv4 addresses
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), `***.***.***.***`},
	// user:password pairs for well-known accounts
	{regexp.MustCompile(`(?i)(?:root|mysql|admin|ubuntu)\s*:\s*[^\s]+`), `***:` + redactedPlaceholder},
	// PEM private key blocks
	{regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), redactedPlaceholder},
}

// Keys whose values are never forwarded, regardless of content.
var sensitiveKeys = map[string]struct{}{
	"password": {}, "passwd": {}, "pwd": {}, "secret": {}, "token": {},
	"credentials": {}, "api_key": {}, "apikey": {}, "authorization": {},
	"auth": {}, "private_key": {},
}

// FilterSecretsFromText redacts credential-shaped substrings in a string.
func FilterSecretsFromText(text string) string {
	out := text
	for _, p := range secretPatterns {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return out
}

// FilterSecretsFromMap recursively redacts a structured payload: values under
// sensitive keys are replaced wholesale, string leaves are pattern-filtered.
func FilterSecretsFromMap(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if _, sensitive := sensitiveKeys[strings.ToLower(k)]; sensitive {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = filterSecretsFromValue(v)
	}
	return out
}

// FilterSecretsFromRecords applies FilterSecretsFromMap to each record.
func FilterSecretsFromRecords(records []map[string]interface{}) []map[string]interface{} {
	if records == nil {
		return nil
	}
	out := make([]map[string]interface{}, len(records))
	for i, r := range records {
		out[i] = FilterSecretsFromMap(r)
	}
	return out
}

// FilterSecretsFromSnippets redacts every config/log snippet value.
func FilterSecretsFromSnippets(snippets map[string]string) map[string]string {
	if snippets == nil {
		return nil
	}
	out := make(map[string]string, len(snippets))
	for name, content := range snippets {
		out[name] = FilterSecretsFromText(content)
	}
	return out
}

func filterSecretsFromValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return FilterSecretsFromText(val)
	case map[string]interface{}:
		return FilterSecretsFromMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = filterSecretsFromValue(item)
		}
		return out
	default:
		return v
	}
}
