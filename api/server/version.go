// version.go - Node & API version info
package server

// Version is overridden at build time with -ldflags "-X civicledger/api/server.Version=...".
var Version = "v0.1.0-dev"

// NodeVersion returns the current node software version.
func NodeVersion() string {
	return Version
}

// APIVersion returns the current API version.
func APIVersion() string {
	return "v1"
}
