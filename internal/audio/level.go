package audio

import (
	"encoding/binary"
	"strconv"
	"strings"
)

const defaultPCMSampleRate = 16000

// PeakLevel returns the largest absolute PCM16LE sample in the chunk,
// normalized by 32768 and clipped to 1.0.
func PeakLevel(pcm []byte) float64 {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	level := float64(peak) / 32768.0
	if level > 1 {
		return 1
	}
	return level
}

// IsPCMFormat reports whether an output format tag names raw PCM ("pcm_<rate>").
func IsPCMFormat(format string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(format)), "pcm_")
}

// PCMSampleRate derives the sample rate from a "pcm_<rate>" tag. Any other tag
// yields 16000.
func PCMSampleRate(format string) int {
	f := strings.ToLower(strings.TrimSpace(format))
	if !strings.HasPrefix(f, "pcm_") {
		return defaultPCMSampleRate
	}
	suffix := strings.TrimPrefix(f, "pcm_")
	if suffix == "" {
		return defaultPCMSampleRate
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return defaultPCMSampleRate
		}
	}
	sr, err := strconv.Atoi(suffix)
	if err != nil || sr <= 0 {
		return defaultPCMSampleRate
	}
	return sr
}

// SampleClock converts streamed mono PCM16 byte counts into elapsed
// milliseconds. It never looks at wall-clock time.
type SampleClock struct {
	sampleRate int64
	bytes      int64
}

func NewSampleClock(sampleRate int) *SampleClock {
	if sampleRate <= 0 {
		sampleRate = defaultPCMSampleRate
	}
	return &SampleClock{sampleRate: int64(sampleRate)}
}

// Advance records n more bytes and returns the cumulative elapsed time in ms.
func (c *SampleClock) Advance(n int) int64 {
	if n > 0 {
		c.bytes += int64(n)
	}
	return c.ElapsedMs()
}

func (c *SampleClock) Samples() int64 { return c.bytes / 2 }

func (c *SampleClock) ElapsedMs() int64 {
	return c.Samples() * 1000 / c.sampleRate
}
