// SPDX-License-Identifier: MIT
package config

// Core configuration constants that define the boundaries and defaults
// for the stream pump.
const (
	// Input kinds accepted by Input.Kind.
	InputWAV   = "wav"
	InputFLAC  = "flac"
	InputMP3   = "mp3"
	InputMic   = "mic"
	InputTone  = "tone"
	InputStdin = "stdin"

	// Default values for the input and processing chain
	DefaultInputKind       = InputTone
	DefaultChannels        = 1           // Mono audio
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultSampleRate      = 16000       // Speech-band audio
	DefaultBitsPerSample   = 16
	DefaultToneHz          = 440.0
	DefaultFormat          = "wav" // WAV file format for recordings
	DefaultFFTSize         = 1024
	DefaultFFTWindow       = "Hann"
	DefaultQueueDepth      = 16

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxFFTSize      = 16384
)

// FileInput reports whether kind reads from Input.Path.
func FileInput(kind string) bool {
	switch kind {
	case InputWAV, InputFLAC, InputMP3:
		return true
	}
	return false
}
