package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// PCM is the canonical representation used for stitching: mono, signed 16-bit.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (p *PCM) Duration() time.Duration {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Decode converts a segment of any supported container to canonical PCM at
// its native sample rate.
func Decode(seg Segment) (*PCM, error) {
	if seg.Empty() {
		return nil, errors.New("empty segment")
	}
	switch ct := sniff(seg); ct {
	case ContentTypeWAV:
		return decodeWAV(seg.Data)
	case ContentTypeMP3:
		return decodeMP3(seg.Data)
	case ContentTypePCM:
		return decodeRaw(seg.Data, seg.SampleRate, seg.Channels)
	default:
		return nil, fmt.Errorf("unsupported segment content type %q", seg.ContentType)
	}
}

func decodeWAV(data []byte) (*PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav data")
	}
	// 1 = integer PCM, 0xFFFE = WAVE_FORMAT_EXTENSIBLE (24-bit exporters use it).
	if d.WavAudioFormat != 1 && d.WavAudioFormat != 0xFFFE {
		return nil, fmt.Errorf("unsupported wav format tag %d", d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading wav samples: %w", err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(d.BitDepth)

	scaled := make([]int, len(buf.Data))
	for i, v := range buf.Data {
		switch bitDepth {
		case 8:
			scaled[i] = (v - 128) << 8
		case 16:
			scaled[i] = v
		case 24:
			scaled[i] = v >> 8
		case 32:
			scaled[i] = v >> 16
		default:
			return nil, fmt.Errorf("unsupported wav bit depth %d", bitDepth)
		}
	}

	return &PCM{
		Samples:    downmix(scaled, channels),
		SampleRate: int(d.SampleRate),
	}, nil
}

func decodeMP3(data []byte) (*PCM, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening mp3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("decoding mp3: %w", err)
	}
	// go-mp3 always yields interleaved stereo s16le.
	return decodeRaw(raw, d.SampleRate(), 2)
}

func decodeRaw(data []byte, sampleRate, channels int) (*PCM, error) {
	if sampleRate <= 0 {
		return nil, errors.New("raw pcm segment without sample rate")
	}
	if channels < 1 {
		channels = 1
	}
	n := len(data) / 2
	ints := make([]int, n)
	for i := 0; i < n; i++ {
		ints[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	return &PCM{Samples: downmix(ints, channels), SampleRate: sampleRate}, nil
}

// downmix averages interleaved frames into mono and clamps to int16.
func downmix(interleaved []int, channels int) []int16 {
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += interleaved[f*channels+c]
		}
		out[f] = clamp16(sum / channels)
	}
	return out
}

func clamp16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Resample converts p to rate with linear interpolation. The output length is
// round(len * rate / p.SampleRate) so durations are preserved to the sample.
func Resample(p *PCM, rate int) *PCM {
	if p.SampleRate == rate || len(p.Samples) == 0 {
		return &PCM{Samples: p.Samples, SampleRate: rate}
	}

	n := len(p.Samples)
	outLen := int(math.Round(float64(n) * float64(rate) / float64(p.SampleRate)))
	out := make([]int16, outLen)
	step := float64(p.SampleRate) / float64(rate)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= n-1 {
			out[i] = p.Samples[n-1]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(p.Samples[idx]), float64(p.Samples[idx+1])
		out[i] = clamp16(int(math.Round(a + (b-a)*frac)))
	}
	return &PCM{Samples: out, SampleRate: rate}
}

// Silence returns round(d × rate) zero samples.
func Silence(d time.Duration, rate int) []int16 {
	if d <= 0 || rate <= 0 {
		return nil
	}
	return make([]int16, int(math.Round(d.Seconds()*float64(rate))))
}
