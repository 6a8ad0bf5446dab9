package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.acme.com", "acme.com"},
		{"http://acme.com", "acme.com"},
		{"acme.com", "acme.com"},
		{"https://ACME.com/about", "acme.com"},
		{"https://www.acme.com:8080/contact", "acme.com"},
		{"https://sub.acme.co.uk/x?y=1", "sub.acme.co.uk"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Domain(tt.url), tt.url)
	}
}

func TestDomainAgreesAcrossVariants(t *testing.T) {
	variants := []string{
		"acme.com",
		"www.acme.com",
		"http://acme.com",
		"https://acme.com",
		"https://www.acme.com/",
		"https://www.acme.com:443",
	}
	for _, v := range variants {
		assert.Equal(t, "acme.com", Domain(v), v)
	}
}
