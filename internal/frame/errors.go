package frame

import "errors"

var (
	// ErrFrameTooOld rejects an insert below the buffer's retained window.
	// Recoverable: the caller decides whether to snap-apply or discard.
	ErrFrameTooOld = errors.New("frame too old")

	// ErrFrameTooOldSnapped reports that a too-old value was force-applied
	// onto the live state instead of being resimulated. The discontinuity is
	// permanent and counted as a hard desync.
	ErrFrameTooOldSnapped = errors.New("frame too old, snapped onto live value")

	// ErrLifecycleViolation reports an impossible birth/death transition.
	// It indicates the host broke the lifecycle-reporting contract and is not
	// a condition to recover from.
	ErrLifecycleViolation = errors.New("attribute lifecycle violation")
)
