package frontier

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during normalization so
// that analytics noise never splits one logical page into several.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"_ga":          true,
	"ref":          true,
	"source":       true,
}

// ParseSeeds splits a raw multi-line input into cleaned seed URLs.
// Blank lines and #-prefixed comments are dropped, shorthand forms are
// expanded and damaged protocol prefixes repaired.
func ParseSeeds(input string) ([]string, error) {
	var seeds []string
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		// "#tag" is Bluesky hashtag shorthand; "# ..." is a comment.
		if line == "" || line == "#" || strings.HasPrefix(line, "# ") {
			continue
		}
		seed, err := CleanSeed(line)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", line, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// CleanSeed expands shorthand forms and repairs common paste damage in
// a single seed, returning a parseable absolute URL.
func CleanSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty seed")
	}

	// Bluesky shorthand: "@name.bsky.social", "bsky:name" or "#hashtag"
	if strings.HasPrefix(raw, "@") {
		return "https://bsky.app/profile/" + strings.TrimPrefix(raw, "@"), nil
	}
	if strings.HasPrefix(raw, "bsky:") {
		return "https://bsky.app/profile/" + strings.TrimPrefix(raw, "bsky:"), nil
	}
	if strings.HasPrefix(raw, "#") {
		return "https://bsky.app/hashtag/" + strings.TrimPrefix(raw, "#"), nil
	}

	raw = RepairProtocol(raw)

	if _, err := url.Parse(raw); err != nil {
		return "", err
	}
	return raw, nil
}

// RepairProtocol fixes protocol prefixes mangled by copy-paste:
// "https:/host", "https//host" and doubled schemes like
// "https://https://host". A bare host gets an https scheme.
func RepairProtocol(raw string) string {
	for _, scheme := range []string{"https", "http"} {
		// Doubled scheme: keep the innermost occurrence.
		double := scheme + "://" + scheme + "://"
		for strings.Contains(raw, double) {
			raw = strings.Replace(raw, double, scheme+"://", 1)
		}
		if idx := strings.Index(raw, "://"+scheme+"://"); idx >= 0 {
			raw = raw[idx+len("://"):]
		}

		// Single-slash and missing-colon variants.
		if strings.HasPrefix(raw, scheme+":/") && !strings.HasPrefix(raw, scheme+"://") {
			raw = scheme + "://" + strings.TrimPrefix(raw, scheme+":/")
		}
		if strings.HasPrefix(raw, scheme+"//") {
			raw = scheme + "://" + strings.TrimPrefix(raw, scheme+"//")
		}
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw
}

// Normalize produces the canonical form of a URL used for visited-set
// and processed-set membership: lowercased scheme and host, fragment
// dropped, tracking parameters removed, remaining query sorted, and no
// trailing slash on the path. Normalize is idempotent.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url missing scheme or host: %s", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Strip tracking parameters, sort what remains
	if u.RawQuery != "" {
		values := u.Query()
		for param := range values {
			if trackingParams[strings.ToLower(param)] {
				values.Del(param)
			}
		}
		u.RawQuery = encodeSorted(values)
	}

	// Trailing slash never distinguishes pages here
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// encodeSorted encodes query values with deterministic key order.
func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Domain extracts the lowercased host of a URL without the www prefix.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www."), nil
}

// SameDomain reports whether two URLs share a domain, treating the www
// prefix as insignificant.
func SameDomain(a, b string) bool {
	da, errA := Domain(a)
	db, errB := Domain(b)
	if errA != nil || errB != nil {
		return false
	}
	return da == db
}

// Resolve turns a possibly-relative href found on a page into an
// absolute URL against the page's base.
func Resolve(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("failed to parse href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
