package defs

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed reserved_namespaces.yaml
var reservedNamespacesYAML []byte

// reservedPrefixes lists the vendor-owned namespace prefixes definitions
// can never be created in (§9 "Reserved namespaces"). Shipped as an
// embedded YAML list rather than a hardcoded slice, since it is the kind of
// small tabular data an operator may reasonably need to extend without a
// Go code change.
var reservedPrefixes = mustLoadReservedPrefixes()

func mustLoadReservedPrefixes() []string {
	var prefixes []string
	if err := yaml.Unmarshal(reservedNamespacesYAML, &prefixes); err != nil {
		panic("defs: malformed reserved_namespaces.yaml: " + err.Error())
	}
	return prefixes
}

// IsReservedNamespace reports whether namespace falls under a vendor-owned
// prefix and must be silently skipped rather than created.
func IsReservedNamespace(namespace string) bool {
	for _, prefix := range reservedPrefixes {
		if namespace == prefix || (len(namespace) > len(prefix) && namespace[:len(prefix)] == prefix) {
			return true
		}
	}
	return false
}
