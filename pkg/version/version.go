// Package version provides version information for the fee-oracle application.
package version

// Version is the current version of the fee-oracle application.
const Version = "0.3.0"

// AgentString returns the user agent sent to upstream nodes.
// Format: fee-oracle/v{version}
func AgentString() string {
	return "fee-oracle/v" + Version
}
