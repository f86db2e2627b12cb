package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AnalyzeCacheKey derives the fingerprint for an analyze request: the payload
// is redacted, whitespace-canonicalized and serialized as JSON with sorted
// keys, then hashed together with the user id. Redaction happens before
// hashing so two submissions differing only in an embedded secret share a key.
func AnalyzeCacheKey(userID uuid.UUID, examResultDetails []map[string]interface{}, configSnippets map[string]string) (string, error) {
	snippets := map[string]string{}
	for name, content := range FilterSecretsFromSnippets(configSnippets) {
		snippets[name] = canonicalizeWhitespace(content)
	}

	payload := map[string]interface{}{
		"exam_result_details": canonicalizeValue(FilterSecretsFromRecords(examResultDetails)),
		"config_snippets":     snippets,
	}

	// encoding/json writes map keys in sorted order, which makes the
	// serialization stable across submissions.
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to normalize analyze payload: %w", err)
	}

	sum := sha256.Sum256([]byte(userID.String() + ":" + string(normalized)))
	return hex.EncodeToString(sum[:]), nil
}

func canonicalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return canonicalizeWhitespace(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = canonicalizeValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalizeValue(map[string]interface{}(item))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// canonicalizeWhitespace collapses runs of whitespace so formatting-only
// differences do not produce distinct fingerprints.
func canonicalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
