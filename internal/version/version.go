// Package version holds build-time version information for the albaqer
// binary, populated via -ldflags:
//
//	go build -ldflags="-X github.com/Ali-M-Jradi/albaqer-chatbot/internal/version.Version=v0.3.0 \
//	                    -X github.com/Ali-M-Jradi/albaqer-chatbot/internal/version.Commit=abc1234 \
//	                    -X github.com/Ali-M-Jradi/albaqer-chatbot/internal/version.BuildDate=2026-01-01" ./cmd/albaqer
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String formats the version line printed by `albaqer version`.
func String() string {
	return fmt.Sprintf("albaqer %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
