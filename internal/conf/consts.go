// conf/consts.go hard coded constants
package conf

const (
	SampleRate      = 48000 // Native sample rate of the capture engine
	BitDepth        = 16    // Bit depth of recorded WAV files
	DefaultChannels = 2     // Default number of capture channels

	// SilenceFloorDB is the dB value reported for an effectively silent signal.
	SilenceFloorDB = -100.0

	// RMSEpsilon is the smallest RMS level converted to decibels; anything
	// below it is reported as SilenceFloorDB to avoid log(0).
	RMSEpsilon = 1e-5
)
