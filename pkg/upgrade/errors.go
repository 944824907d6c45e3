package upgrade

import "github.com/xrepair/xrepair/internal/xferrors"

// newUpgradeError wraps a rejection reason as spec.md §7's NotSupported kind: "requested feature
// combination is invalid; surfaced to the user before any change."
func newUpgradeError(reason string) error {
	return xferrors.New(xferrors.KindNotSupported, reason)
}
