package utils

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var linkRegex = regexp.MustCompile(`https?://[^\s<>]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid", "si"}

// CleanLinks rewrites every link in text to its normalized form and collapses
// surrounding whitespace. Links that fail to parse are kept as written.
func CleanLinks(text string) string {
	cleaned := linkRegex.ReplaceAllStringFunc(text, func(raw string) string {
		normalized, err := NormalizeLink(raw)
		if err != nil {
			return raw
		}
		return normalized
	})
	return strings.Join(strings.Fields(cleaned), " ")
}

// NormalizeLink lowercases and IDNA-encodes the host, strips credentials,
// fragments and tracking parameters, and sorts the remaining query.
func NormalizeLink(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	if port := parsed.Port(); port != "" {
		host += ":" + port
	}

	parsed.Host = host
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = sortedQuery(query)

	return parsed.String(), nil
}

func sortedQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.Values{key: values[key]}.Encode())
	}
	return b.String()
}
