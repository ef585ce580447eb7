package normalizers

import "strings"

var freeEmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"aol.com":        {},
	"icloud.com":     {},
	"mail.com":       {},
	"protonmail.com": {},
	"proton.me":      {},
	"live.com":       {},
	"msn.com":        {},
	"yandex.com":     {},
	"zoho.com":       {},
	"fastmail.com":   {},
	"tutanota.com":   {},
	"hey.com":        {},
}

// IsFreeEmailDomain reports whether domain is a consumer mail provider. Only
// exact matches count; subdomains are not filtered.
func IsFreeEmailDomain(domain string) bool {
	_, ok := freeEmailDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}

// ExtractEmailDomain returns the lowercased domain of a corporate email address.
// It returns false for malformed addresses and free-mail domains.
func ExtractEmailDomain(email string) (string, bool) {
	email = strings.TrimSpace(email)
	if email == "" || strings.Count(email, "@") != 1 {
		return "", false
	}

	local, domain, _ := strings.Cut(email, "@")
	domain = strings.ToLower(strings.TrimSpace(domain))
	if strings.TrimSpace(local) == "" || domain == "" {
		return "", false
	}
	if IsFreeEmailDomain(domain) {
		return "", false
	}
	return domain, true
}

// EmailDomain is ExtractEmailDomain in Normalizer form; rejected addresses become "".
func EmailDomain(email string) string {
	domain, _ := ExtractEmailDomain(email)
	return domain
}

// UniqueEmailDomains returns the distinct corporate domains of emails in first-seen order.
func UniqueEmailDomains(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	var domains []string
	for _, email := range emails {
		domain, ok := ExtractEmailDomain(email)
		if !ok {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	return domains
}

// NormalizeDomain reduces a website or domain as CRMs store it ("https://www.Acme.com/about")
// to the bare lowercased host ("acme.com").
func NormalizeDomain(value string) string {
	d := strings.ToLower(strings.TrimSpace(value))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.Trim(d, ".")
}
