package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCompanyName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Acme", "acme"},
		{"inc with period", "Acme Inc.", "acme"},
		{"corp", "Acme Corp", "acme"},
		{"stacked suffixes", "Acme Holdings Group LLC", "acme"},
		{"hyphen becomes space", "Big-Tech, Inc", "big tech"},
		{"collapses whitespace", "  Foo    Bar   Ltd ", "foo bar"},
		{"only suffixes", "Company Inc", ""},
		{"suffix in the middle stays", "Co Working Spaces", "co working spaces"},
		{"gmbh", "Siemens GmbH", "siemens"},
		{"punctuation", "AT&T Corporation", "at t"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeCompanyName(tt.input))
		})
	}
}

func TestNormalizeCompanyName_Idempotent(t *testing.T) {
	inputs := []string{"Acme Inc.", "Big-Tech, Inc", "Foo Bar Holdings PLC", "Company", "Über GmbH & Co. KG"}
	for _, in := range inputs {
		once := NormalizeCompanyName(in)
		assert.Equal(t, once, NormalizeCompanyName(once), in)
	}
}

func TestExtractEmailDomain(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		domain string
		ok     bool
	}{
		{"corporate", "john@bigtech.com", "bigtech.com", true},
		{"uppercase and spaces", "  Jane@BigTech.COM ", "bigtech.com", true},
		{"free mail", "bob@gmail.com", "", false},
		{"free mail uppercase", "bob@GMAIL.com", "", false},
		{"free mail subdomain is kept", "bob@eu.gmail.com", "eu.gmail.com", true},
		{"empty", "", "", false},
		{"no at", "john.bigtech.com", "", false},
		{"two ats", "a@b@c.com", "", false},
		{"empty local", "@bigtech.com", "", false},
		{"empty domain", "john@", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain, ok := ExtractEmailDomain(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.domain, domain)
		})
	}
}

func TestUniqueEmailDomains(t *testing.T) {
	domains := UniqueEmailDomains([]string{"a@acme.com", "b@ACME.com", "c@gmail.com", "", "d@other.io"})
	assert.Equal(t, []string{"acme.com", "other.io"}, domains)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "john smith", NormalizeName("  John   Smith Jr. "))
	assert.Equal(t, "mary jane", NormalizeName("Mary\tJane"))
	assert.Equal(t, "oconnor", NormalizeName("O'Connor"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "acme.com", ApplyChain("  Bob@Acme.com ", "trim", "email_domain"))
	assert.Equal(t, "acme", ApplyChain("Acme, Inc.", "company_name", "unknown"))

	Register("upper_first", func(s string) string { return s })
	_, ok := Get("upper_first")
	assert.True(t, ok)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"acme.com", "acme.com"},
		{" ACME.com ", "acme.com"},
		{"https://www.Acme.com/about?x=1", "acme.com"},
		{"http://acme.io:8080", "acme.io"},
		{"www.globex.com.", "globex.com"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDomain(tt.input))
		})
	}
}
