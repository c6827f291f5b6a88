package host

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Bridge protocol versions accepted by SetBridge. The protocol covers the
// method-call and event envelope shapes; a major bump means those envelopes
// changed incompatibly.
const (
	protocolMajor = "v1"
	protocolMin   = "v1.0.0"
)

// protocolErr records why the last SetBridge call refused a bridge, nil when
// the current bridge (or the absence of one) is unremarkable.
var protocolErr error

// VersionedBridge is implemented by bridges that report the protocol version
// they speak, as a semantic version such as "v1.2.0". Bridges that do not
// implement it are assumed compatible.
type VersionedBridge interface {
	Bridge

	// ProtocolVersion returns the bridge's protocol version.
	ProtocolVersion() string
}

// checkProtocol validates a bridge-reported protocol version against the
// supported range.
func checkProtocol(version string) error {
	if !semver.IsValid(version) {
		return fmt.Errorf("%w: malformed version %q", ErrProtocol, version)
	}
	if semver.Major(version) != protocolMajor {
		return fmt.Errorf("%w: bridge speaks %s, this library speaks %s", ErrProtocol, semver.Major(version), protocolMajor)
	}
	if semver.Compare(version, protocolMin) < 0 {
		return fmt.Errorf("%w: bridge version %s is older than minimum %s", ErrProtocol, version, protocolMin)
	}
	return nil
}

// Available reports whether a protocol-compatible host bridge is installed.
func Available() bool {
	return bridge != nil
}

// ProtocolError returns the reason the last SetBridge call refused a bridge,
// or nil when no bridge was refused.
func ProtocolError() error {
	return protocolErr
}
