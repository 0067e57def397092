package sysconfig

import "errors"

// Configuration errors. They are terminal for a single get/set and are
// reported to the protocol layer as status codes.
var (
	ErrNotSupported = errors.New("not supported")
	ErrRead         = errors.New("read failure")
	ErrWrite        = errors.New("write failure")
	ErrInvalidValue = errors.New("invalid value")
	ErrInvalidIndex = errors.New("invalid index")
)
