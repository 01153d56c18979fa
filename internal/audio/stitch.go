package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nadzzz/duomode/internal/logging"
)

var (
	// ErrNoAudioToStitch is returned for an empty segment list.
	ErrNoAudioToStitch = errors.New("no audio to stitch")

	// ErrStitchFailed wraps decode and encode failures.
	ErrStitchFailed = errors.New("stitch failed")
)

// Stitcher concatenates segments with a fixed pause between consecutive ones.
type Stitcher struct {
	encoder    Encoder
	sampleRate int // 0: use the first segment's rate
}

// NewStitcher creates a stitcher. A sampleRate of 0 selects the rate of the
// first segment as the common target.
func NewStitcher(enc Encoder, sampleRate int) *Stitcher {
	return &Stitcher{encoder: enc, sampleRate: sampleRate}
}

// Stitch decodes every segment, resamples to one rate, inserts pause-length
// silence strictly between segments and encodes the result.
func (s *Stitcher) Stitch(ctx context.Context, segments []Segment, pause time.Duration) (*Encoded, error) {
	if len(segments) == 0 {
		return nil, ErrNoAudioToStitch
	}

	logger := logging.FromContext(ctx)

	decoded := make([]*PCM, len(segments))
	for i, seg := range segments {
		pcm, err := Decode(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrStitchFailed, i, err)
		}
		decoded[i] = pcm
	}

	rate := s.sampleRate
	if rate <= 0 {
		rate = decoded[0].SampleRate
	}

	silence := Silence(pause, rate)

	total := len(silence) * (len(decoded) - 1)
	for i, pcm := range decoded {
		if pcm.SampleRate != rate {
			logger.Debug("resampling segment", "index", i, "from", pcm.SampleRate, "to", rate)
			decoded[i] = Resample(pcm, rate)
		}
		total += len(decoded[i].Samples)
	}

	out := make([]int16, 0, total)
	for i, pcm := range decoded {
		if i > 0 {
			out = append(out, silence...)
		}
		out = append(out, pcm.Samples...)
	}
	merged := &PCM{Samples: out, SampleRate: rate}

	data, err := s.encoder.Encode(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrStitchFailed, err)
	}

	logger.Debug("stitched segments",
		"segments", len(segments),
		"sample_rate", rate,
		"duration", merged.Duration(),
		"bytes", len(data))

	return &Encoded{
		Data:        data,
		ContentType: s.encoder.ContentType(),
		Extension:   s.encoder.Extension(),
		SampleRate:  rate,
		Duration:    merged.Duration(),
	}, nil
}
