package audiocore

import (
	"math"

	"github.com/audiorewind/rewind-go/internal/conf"
)

// measureBlockLevels computes the per-channel peak of an interleaved block
// and converts it to decibels, writing into the caller-provided slices. It
// allocates nothing so it is safe on the capture path.
func measureBlockLevels(samples []float32, frameCount, channels int, peaks, decibels []float64) {
	for ch := 0; ch < channels; ch++ {
		peaks[ch] = 0
	}

	for i := 0; i < frameCount*channels; i++ {
		v := math.Abs(float64(samples[i]))
		ch := i % channels
		if v > peaks[ch] {
			peaks[ch] = v
		}
	}

	for ch := 0; ch < channels; ch++ {
		decibels[ch] = linearToDB(peaks[ch])
	}
}

// linearToDB converts a linear level to decibels, clipping the noise floor
// at conf.SilenceFloorDB for effectively silent signal.
func linearToDB(level float64) float64 {
	if level <= conf.RMSEpsilon {
		return conf.SilenceFloorDB
	}
	return 20 * math.Log10(level)
}
