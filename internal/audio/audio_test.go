package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestPeakLevel(t *testing.T) {
	cases := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"empty", nil, 0},
		{"silence", []byte{0, 0, 0, 0}, 0},
		{"max positive", []byte{0x00, 0x00, 0xFF, 0x7F}, 32767.0 / 32768.0},
		{"min negative clips at one", []byte{0x00, 0x80}, 1.0},
		{"odd trailing byte ignored", []byte{0x00, 0x40, 0xFF}, 16384.0 / 32768.0},
		{"negative half", []byte{0x00, 0xC0}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PeakLevel(tc.pcm); got != tc.want {
				t.Fatalf("PeakLevel(%v) = %v, want %v", tc.pcm, got, tc.want)
			}
		})
	}
}

func TestPeakLevelNotClippedBelowFullScale(t *testing.T) {
	got := PeakLevel([]byte{0x00, 0x00, 0xFF, 0x7F})
	if got >= 1.0 {
		t.Fatalf("PeakLevel = %v, want strictly below 1.0", got)
	}
	if got < 0.99996 || got > 0.99998 {
		t.Fatalf("PeakLevel = %v, want about 0.99997", got)
	}
}

func TestPCMSampleRate(t *testing.T) {
	cases := map[string]int{
		"pcm_16000":      16000,
		"PCM_44100":      44100,
		" pcm_22050 ":    22050,
		"pcm_":           16000,
		"pcm_16000_test": 16000,
		"mp3_44100_128":  16000,
		"":               16000,
	}
	for format, want := range cases {
		if got := PCMSampleRate(format); got != want {
			t.Fatalf("PCMSampleRate(%q) = %d, want %d", format, got, want)
		}
	}
}

func TestIsPCMFormat(t *testing.T) {
	if !IsPCMFormat("pcm_24000") {
		t.Fatalf("IsPCMFormat(pcm_24000) = false, want true")
	}
	if IsPCMFormat("mp3_44100_128") {
		t.Fatalf("IsPCMFormat(mp3_44100_128) = true, want false")
	}
}

func TestSampleClockOneSecond(t *testing.T) {
	c := NewSampleClock(16000)
	if got := c.Advance(32000); got != 1000 {
		t.Fatalf("Advance(32000) = %d, want 1000", got)
	}
}

func TestSampleClockIndependentOfChunking(t *testing.T) {
	whole := NewSampleClock(16000)
	want := whole.Advance(48000)

	chunked := NewSampleClock(16000)
	var got int64
	for _, n := range []int{1, 4095, 10000, 33903, 1} {
		got = chunked.Advance(n)
	}
	if got != want {
		t.Fatalf("chunked elapsed = %d, want %d", got, want)
	}
	if want != 1500 {
		t.Fatalf("elapsed = %d, want 1500", want)
	}
}

func TestWriteWAVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	pcm := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x40, 0x00, 0xC0}
	if err := WriteWAVFile(path, pcm, 22050, 2); err != nil {
		t.Fatalf("WriteWAVFile() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatalf("decoder rejected written file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}
	if dec.SampleRate != 22050 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("header = %d Hz / %d ch / %d bit, want 22050/2/16", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{1, -1, 16384, -16384}
	if len(buf.Data) != len(want) {
		t.Fatalf("samples = %v, want %v", buf.Data, want)
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Fatalf("samples = %v, want %v", buf.Data, want)
		}
	}
}
