package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "header value",
			in:   "X-Shopify-Access-Token: shpat_abcdef1234567890",
			want: "X-Shopify-Access-Token: [REDACTED]",
		},
		{
			name: "query token param",
			in:   "https://cdn.example.com/files/logo.png?token=abc123&v=2",
			want: "https://cdn.example.com/files/logo.png?token=[REDACTED]&v=2",
		},
		{
			name: "query access_token param",
			in:   "https://cdn.example.com/files/logo.png?access_token=abc123",
			want: "https://cdn.example.com/files/logo.png?access_token=[REDACTED]",
		},
		{
			name: "no secret present",
			in:   "plain log line with no secrets",
			want: "plain log line with no secrets",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Redact(tc.in))
		})
	}
}
