package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// AnonymizeEmail hashes an address so log lines about the same mailbox can
// be correlated without recording the address itself.
func AnonymizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(sum[:8])
}

// UserHash is the attribute form of AnonymizeEmail.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// ExtractDomain returns the lowercased domain of an address, accepting the
// "Name <user@host>" form. It returns "" for anything else.
func ExtractDomain(address string) string {
	if i := strings.LastIndex(address, "<"); i >= 0 {
		address = strings.TrimSuffix(address[i+1:], ">")
	}
	local, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return strings.ToLower(domain)
}

// RecipientDomains returns the distinct recipient domains in first-seen
// order.
func RecipientDomains(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	domains := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		d := ExtractDomain(addr)
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	return domains
}
