package config

// Version is the canonical version of marketd
// This should be the single source of truth for all version references
const Version = "0.1.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
