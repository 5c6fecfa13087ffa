package naturalkey

import "testing"

func TestFilenameFromURL(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "https://cdn.shopify.com/s/files/1/logo.png", "logo.png"},
		{"with version token", "https://cdn.shopify.com/s/files/1/logo.png?v=1234567890", "logo.png"},
		{"with multiple query params", "https://cdn.shopify.com/s/files/1/hero.jpg?v=1&x=2", "hero.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FilenameFromURL(tc.url); got != tc.want {
				t.Errorf("FilenameFromURL(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}
