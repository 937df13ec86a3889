// Package registryauth resolves Docker registry credentials for image pulls.
package registryauth

import (
	"context"
	"strings"
)

// Provider supplies Docker RegistryAuth for a given registry host.
type Provider interface {
	// Match reports whether the provider handles the host.
	Match(host string) bool

	// Resolve returns the base64 RegistryAuth payload; empty for anonymous.
	Resolve(ctx context.Context, host string, imageRef string) (string, error)
}

// HostOf extracts the registry host from an image reference. References
// without a registry component resolve to Docker Hub.
func HostOf(imageRef string) string {
	first, _, found := strings.Cut(imageRef, "/")
	if !found {
		return "docker.io"
	}
	// A registry host contains a dot or port, or is the local daemon.
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return "docker.io"
}

// hostMatches implements a simple wildcard match: a leading '*' matches any
// prefix, otherwise the comparison is an exact case-insensitive match.
func hostMatches(pattern, host string) bool {
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return strings.EqualFold(pattern, host)
	}
	idx := strings.Index(pattern, "*")
	suffix := pattern[idx+1:]
	return strings.HasSuffix(host, suffix)
}
