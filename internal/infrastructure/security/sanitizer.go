package security

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Sensitive header names that should be redacted.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

// Sensitive field names in JSON and form bodies that should be redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"key",
	"authorization",
	"api_key",
	"apikey",
	"access_token",
	"refresh_token",
	"client_secret",
	"private_key",
	"credential",
	"auth",
}

const redactedValue = "[REDACTED]"

func isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// SanitizeHeaders returns a copy of an HTTP header map with sensitive values
// redacted and multi-value headers joined.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string)
	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			sanitized[key] = redactedValue
		} else {
			sanitized[key] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

// SanitizeBody prepares an HTTP body for audit storage: credentials redacted,
// binary payloads base64-wrapped, oversized payloads truncated. contentType
// selects form-encoded handling; identity provider exchanges travel as
// application/x-www-form-urlencoded and must never reach storage verbatim.
func SanitizeBody(body []byte, contentType string, maxSize int) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	if isFormContentType(contentType) {
		return sanitizeFormBody(body)
	}

	// Gzip magic number 0x1f 0x8b.
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		decompressed, err := decompressGzip(body)
		if err != nil {
			return wrapBinary(body, "gzip-compressed (decompression failed)")
		}
		body = decompressed
	}

	if !utf8.Valid(body) {
		return wrapBinary(body, "binary (non-UTF8)")
	}

	if maxSize > 0 && len(body) > maxSize {
		result, _ := json.Marshal(map[string]any{
			"_truncated": true,
			"_size":      len(body),
			"_preview":   string(body[:maxSize]),
		})
		return json.RawMessage(result)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// Valid UTF-8 but not JSON; keep it as wrapped text.
		return wrapText(body)
	}

	result, err := json.Marshal(sanitizeValue(data))
	if err != nil {
		return wrapText(body)
	}
	return json.RawMessage(result)
}

// sanitizeFormBody redacts sensitive keys of a form-encoded body and stores
// the remainder as a JSON object.
func sanitizeFormBody(body []byte) json.RawMessage {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		// Unparseable form data could still carry credentials; redact it whole.
		result, _ := json.Marshal(map[string]any{
			"_form":     true,
			"_redacted": true,
		})
		return json.RawMessage(result)
	}

	sanitized := make(map[string]string, len(form))
	for key, values := range form {
		if isSensitiveField(key) {
			sanitized[key] = redactedValue
		} else {
			sanitized[key] = strings.Join(values, ", ")
		}
	}
	result, _ := json.Marshal(sanitized)
	return json.RawMessage(result)
}

func isFormContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded")
	}
	return mediaType == "application/x-www-form-urlencoded"
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func wrapBinary(data []byte, format string) json.RawMessage {
	result, _ := json.Marshal(map[string]any{
		"_binary": true,
		"_format": format,
		"_size":   len(data),
		"_base64": base64.StdEncoding.EncodeToString(data),
	})
	return json.RawMessage(result)
}

func wrapText(body []byte) json.RawMessage {
	result, _ := json.Marshal(map[string]any{
		"_raw":    string(body),
		"_format": "text",
	})
	return json.RawMessage(result)
}

// sanitizeValue recursively sanitizes a JSON value.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		sanitized := make(map[string]any, len(val))
		for key, value := range val {
			if isSensitiveField(key) {
				sanitized[key] = redactedValue
			} else {
				sanitized[key] = sanitizeValue(value)
			}
		}
		return sanitized
	case []any:
		sanitized := make([]any, len(val))
		for i, value := range val {
			sanitized[i] = sanitizeValue(value)
		}
		return sanitized
	default:
		return val
	}
}

// SanitizeURL redacts sensitive query parameter values from a URL.
func SanitizeURL(rawURL string) string {
	lowerURL := strings.ToLower(rawURL)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerURL, field+"=") {
			rawURL = redactQueryParam(rawURL, field)
		}
	}
	return rawURL
}

func redactQueryParam(rawURL, param string) string {
	lowerURL := strings.ToLower(rawURL)
	lowerParam := strings.ToLower(param)

	idx := strings.Index(lowerURL, lowerParam+"=")
	if idx == -1 {
		return rawURL
	}

	startIdx := idx + len(lowerParam) + 1
	endIdx := strings.IndexAny(rawURL[startIdx:], "&")
	if endIdx == -1 {
		return rawURL[:startIdx] + redactedValue
	}
	return rawURL[:startIdx] + redactedValue + rawURL[startIdx+endIdx:]
}
