package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	localPartRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9._+-]*[a-z0-9])?$`)
	hostnameRE  = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)
	slugRE      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

// Email parses and normalizes a profile email address.
//
// Validation is intentionally conservative (ASCII, no display name, no quoted
// local part) so the stored form is unambiguous for uniqueness checks.
func Email(address string) (string, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return "", fmt.Errorf("address is empty")
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return "", fmt.Errorf("address must not contain spaces")
	}

	// Lowercase for storage and uniqueness.
	raw = strings.ToLower(raw)

	parts := strings.Split(raw, "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid address: %q", address)
	}
	localPart := parts[0]
	domain := strings.TrimSuffix(parts[1], ".")
	if localPart == "" || domain == "" {
		return "", fmt.Errorf("invalid address: %q", address)
	}
	if !localPartRE.MatchString(localPart) {
		return "", fmt.Errorf("invalid local part: %q", localPart)
	}
	if !hostnameRE.MatchString(domain) {
		return "", fmt.Errorf("invalid domain: %q", domain)
	}

	return localPart + "@" + domain, nil
}

// OrgSlug normalizes an organization slug for storage and URL matching:
// lowercase, trimmed, hyphen-separated ASCII with no leading or trailing
// hyphen. Returns an error if the slug is invalid.
func OrgSlug(slug string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(slug))
	if s == "" {
		return "", fmt.Errorf("slug is empty")
	}
	if !slugRE.MatchString(s) {
		return "", fmt.Errorf("invalid slug: %q", slug)
	}
	return s, nil
}
