// Package audio provides the sample-level operations the slicing pipeline
// applies to recorded takes: PCM decoding to mono floating-point clips,
// linear-interpolation resampling, peak normalization, boundary fades, and a
// minimal RIFF/WAVE codec.
//
// All processing operates on mono float64 samples in [-1, 1]. Multi-channel
// input is down-mixed on decode; output is always 16-bit mono WAV.
package audio

import "math"

// Clip is a mono floating-point audio signal.
type Clip struct {
	// Samples are mono samples in [-1, 1].
	Samples []float64

	// SampleRate is the sample rate in Hz.
	SampleRate int
}

// DurationMS returns the clip length in milliseconds.
func (c Clip) DurationMS() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate) * 1000
}

// SliceMS returns the sub-clip spanning [startMS, endMS), clamped to the clip
// bounds. An inverted or fully out-of-range window yields an empty clip.
// The returned clip owns its own sample buffer, so in-place processing of a
// slice never alters the source clip, even when slice windows overlap.
func (c Clip) SliceMS(startMS, endMS float64) Clip {
	start := int(startMS / 1000 * float64(c.SampleRate))
	end := int(endMS / 1000 * float64(c.SampleRate))

	if start < 0 {
		start = 0
	}
	if end > len(c.Samples) {
		end = len(c.Samples)
	}
	if start >= end {
		return Clip{SampleRate: c.SampleRate}
	}
	out := make([]float64, end-start)
	copy(out, c.Samples[start:end])
	return Clip{Samples: out, SampleRate: c.SampleRate}
}

// FromPCM16 converts little-endian int16 PCM to mono float64 samples,
// averaging all channels per frame. A trailing partial frame is ignored.
func FromPCM16(pcm []byte, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(uint16(pcm[idx]) | uint16(pcm[idx+1])<<8)
			sum += float64(sample) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// ToPCM16 converts mono float64 samples to little-endian int16 PCM, clamping
// to the int16 range. The scale matches FromPCM16 and values round to the
// nearest step, so a decode of the output stays within half a quantization
// step of the input.
func ToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(s * 32768.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		sample := int16(v)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. The mapping is monotonic in time; exact band-limited
// reconstruction is not attempted. Equal rates or degenerate input return
// the samples unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}

	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Normalize scales samples in place so the absolute peak equals target
// (e.g. 0.95 for 95% of full scale). Silent input is left untouched.
func Normalize(samples []float64, target float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	scale := target / peak
	for i := range samples {
		samples[i] *= scale
	}
}

// ApplyFades applies a linear fade-in and fade-out of fadeMS milliseconds in
// place, to avoid discontinuity clicks at slice boundaries. The fade length
// is capped at a quarter of the clip so short slices keep usable material.
func ApplyFades(samples []float64, sampleRate int, fadeMS float64) {
	fade := int(fadeMS / 1000 * float64(sampleRate))
	if limit := len(samples) / 4; fade > limit {
		fade = limit
	}
	if fade <= 0 {
		return
	}

	for i := range fade {
		gain := float64(i) / float64(fade)
		samples[i] *= gain
		samples[len(samples)-1-i] *= gain
	}
}
