package protocol

import "strings"

// ParseURLEncoded decodes an application/x-www-form-urlencoded body.
// Pairs without '=' are skipped; a repeated key keeps the last value.
func ParseURLEncoded(body string) map[string]string {
	params := make(map[string]string)
	if body == "" {
		return params
	}
	for _, pair := range strings.Split(body, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		params[DecodeQuery(key)] = DecodeQuery(value)
	}
	return params
}
