// SPDX-License-Identifier: MIT
package pump

import "github.com/pkg/errors"

// Error kinds surfaced by Pump operations. Each precondition violation maps to
// exactly one of these; match with errors.Is.
var (
	ErrAlreadyInitialized = errors.New("pump: source already attached")
	ErrAlreadyPumping     = errors.New("pump: audio is already pumping")
	ErrUninitialized      = errors.New("pump: no source attached")
	ErrNoAudioInput       = errors.New("pump: no audio input")
	ErrNotImplemented     = errors.New("pump: not implemented")
	ErrUnsupportedFormat  = errors.New("pump: unsupported audio format")
)
