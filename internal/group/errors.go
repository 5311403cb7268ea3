package group

import "errors"

var (
	// ErrPrecondition is returned when a group command is invalid given
	// the currently resolved topology, for example a device joining
	// itself. The command is rejected locally, before anything is sent.
	ErrPrecondition = errors.New("group: precondition failed")

	// ErrUnknownDevice is returned when a command names a host that is
	// not currently managed.
	ErrUnknownDevice = errors.New("group: unknown device")
)
