package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func toneSegment(t *testing.T, d time.Duration, rate int, level int16) Segment {
	t.Helper()
	n := int(math.Round(d.Seconds() * float64(rate)))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = level
	}
	data, err := EncodeWAV(&PCM{Samples: samples, SampleRate: rate})
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return Segment{Data: data, ContentType: ContentTypeWAV, SampleRate: rate, Channels: 1, Duration: d}
}

func decodeOutput(t *testing.T, enc *Encoded) *PCM {
	t.Helper()
	pcm, err := Decode(Segment{Data: enc.Data, ContentType: enc.ContentType})
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return pcm
}

func within(got, want, tol time.Duration) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= tol
}

func TestStitchRejectsEmpty(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 0)
	_, err := s.Stitch(context.Background(), nil, 250*time.Millisecond)
	if !errors.Is(err, ErrNoAudioToStitch) {
		t.Fatalf("expected ErrNoAudioToStitch, got %v", err)
	}
}

func TestStitchSingleSegmentHasNoSilence(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 0)
	seg := toneSegment(t, time.Second, 16000, 1000)

	out, err := s.Stitch(context.Background(), []Segment{seg}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if out.Duration != time.Second {
		t.Fatalf("expected 1s, got %s", out.Duration)
	}
	pcm := decodeOutput(t, out)
	if len(pcm.Samples) != 16000 {
		t.Fatalf("expected 16000 samples, got %d", len(pcm.Samples))
	}
	for i, v := range pcm.Samples {
		if v == 0 {
			t.Fatalf("unexpected silence at sample %d", i)
		}
	}
}

func TestStitchDurationIsSumPlusPauses(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 0)
	segs := []Segment{
		toneSegment(t, 2*time.Second, 24000, 800),
		toneSegment(t, 1600*time.Millisecond, 24000, 800),
	}

	out, err := s.Stitch(context.Background(), segs, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if !within(out.Duration, 3850*time.Millisecond, time.Millisecond) {
		t.Fatalf("expected ~3.85s, got %s", out.Duration)
	}
	if got := decodeOutput(t, out).Duration(); !within(got, 3850*time.Millisecond, time.Millisecond) {
		t.Fatalf("decoded output duration %s", got)
	}
}

func TestStitchPauseOnlyBetweenSegments(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 0)
	rate := 8000
	segs := []Segment{
		toneSegment(t, 100*time.Millisecond, rate, 500),
		toneSegment(t, 100*time.Millisecond, rate, 600),
		toneSegment(t, 100*time.Millisecond, rate, 700),
	}

	out, err := s.Stitch(context.Background(), segs, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	pcm := decodeOutput(t, out)

	seg, gap := 800, 400
	if want := 3*seg + 2*gap; len(pcm.Samples) != want {
		t.Fatalf("expected %d samples, got %d", want, len(pcm.Samples))
	}
	if pcm.Samples[0] != 500 || pcm.Samples[len(pcm.Samples)-1] != 700 {
		t.Fatalf("output must start and end with speech, got %d and %d", pcm.Samples[0], pcm.Samples[len(pcm.Samples)-1])
	}
	for i := seg; i < seg+gap; i++ {
		if pcm.Samples[i] != 0 {
			t.Fatalf("expected silence at %d, got %d", i, pcm.Samples[i])
		}
	}
	if pcm.Samples[seg+gap] != 600 {
		t.Fatalf("second segment misplaced, got %d", pcm.Samples[seg+gap])
	}
}

func TestStitchResamplesToFirstSegmentRate(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 0)
	segs := []Segment{
		toneSegment(t, time.Second, 16000, 300),
		toneSegment(t, 500*time.Millisecond, 22050, 300),
	}

	out, err := s.Stitch(context.Background(), segs, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Fatalf("expected target rate 16000, got %d", out.SampleRate)
	}
	pcm := decodeOutput(t, out)
	if want := 16000 + 1600 + 8000; len(pcm.Samples) != want {
		t.Fatalf("expected %d samples, got %d", want, len(pcm.Samples))
	}
}

func TestStitchUsesConfiguredRate(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 24000)
	segs := []Segment{
		toneSegment(t, time.Second, 16000, 300),
		toneSegment(t, time.Second, 22050, 300),
	}

	out, err := s.Stitch(context.Background(), segs, 0)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if out.SampleRate != 24000 {
		t.Fatalf("expected configured rate, got %d", out.SampleRate)
	}
	if !within(out.Duration, 2*time.Second, time.Millisecond) {
		t.Fatalf("expected ~2s, got %s", out.Duration)
	}
}

func TestStitchDecodeFailure(t *testing.T) {
	s := NewStitcher(WAVEncoder{}, 0)
	segs := []Segment{
		toneSegment(t, 100*time.Millisecond, 8000, 1),
		{Data: []byte("not audio at all"), ContentType: "application/octet-stream"},
	}
	_, err := s.Stitch(context.Background(), segs, 0)
	if !errors.Is(err, ErrStitchFailed) {
		t.Fatalf("expected ErrStitchFailed, got %v", err)
	}
}

type failingEncoder struct{ WAVEncoder }

func (failingEncoder) Encode(context.Context, *PCM) ([]byte, error) {
	return nil, errors.New("disk full")
}

func TestStitchEncodeFailure(t *testing.T) {
	s := NewStitcher(failingEncoder{}, 0)
	_, err := s.Stitch(context.Background(), []Segment{toneSegment(t, 10*time.Millisecond, 8000, 1)}, 0)
	if !errors.Is(err, ErrStitchFailed) {
		t.Fatalf("expected ErrStitchFailed, got %v", err)
	}
}

func TestDecodeRawStereoDownmix(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint16(raw[0:], uint16(100))
	binary.LittleEndian.PutUint16(raw[2:], uint16(300))
	binary.LittleEndian.PutUint16(raw[4:], uint16(0xFFFF)) // -1
	binary.LittleEndian.PutUint16(raw[6:], uint16(0xFFFD)) // -3

	pcm, err := Decode(Segment{Data: raw, ContentType: ContentTypePCM, SampleRate: 22050, Channels: 2})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pcm.Samples) != 2 || pcm.Samples[0] != 200 || pcm.Samples[1] != -2 {
		t.Fatalf("unexpected samples %v", pcm.Samples)
	}
	if pcm.SampleRate != 22050 {
		t.Fatalf("unexpected rate %d", pcm.SampleRate)
	}
}

func TestDecodeRawRequiresRate(t *testing.T) {
	if _, err := Decode(Segment{Data: []byte{0, 0}, ContentType: ContentTypePCM}); err == nil {
		t.Fatal("expected error for raw pcm without rate")
	}
}

func TestResampleInterpolates(t *testing.T) {
	in := &PCM{Samples: []int16{0, 100, 200, 300}, SampleRate: 4}
	out := Resample(in, 8)
	if len(out.Samples) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(out.Samples))
	}
	if out.Samples[1] != 50 || out.Samples[2] != 100 {
		t.Fatalf("unexpected interpolation %v", out.Samples)
	}
}

func TestSilenceRounds(t *testing.T) {
	if got := len(Silence(250*time.Millisecond, 22050)); got != 5513 {
		t.Fatalf("expected 5513 samples, got %d", got)
	}
	if Silence(0, 16000) != nil {
		t.Fatal("expected no silence for zero pause")
	}
}

func TestNewEncoderFormats(t *testing.T) {
	enc, err := NewEncoder("wav", "")
	if err != nil || enc.Extension() != ".wav" {
		t.Fatalf("wav encoder: %v %v", enc, err)
	}
	enc, err = NewEncoder("mp3", "")
	if err != nil || enc.ContentType() != ContentTypeMP3 {
		t.Fatalf("mp3 encoder: %v %v", enc, err)
	}
	if _, err := NewEncoder("flac", ""); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := NewFFmpegEncoder(`ffmpeg "unterminated`, ContentTypeMP3, ".mp3"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFFmpegEncoderPipesThroughCommand(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	enc, err := NewFFmpegEncoder("cat", ContentTypeWAV, ".wav")
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	data, err := enc.Encode(context.Background(), &PCM{Samples: make([]int16, 100), SampleRate: 8000})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if sniff(Segment{Data: data}) != ContentTypeWAV {
		t.Fatal("expected the wav stream to pass through unchanged")
	}
}

// id3Size returns the length of an ID3v2 tag, header included.
func id3Size(data []byte) int {
	size := int(data[6])<<21 | int(data[7])<<14 | int(data[8])<<7 | int(data[9])
	return 10 + size
}

func TestSniffMP3(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "bueller.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if got := sniff(Segment{Data: data}); got != ContentTypeMP3 {
		t.Fatalf("id3 tagged: got %q", got)
	}
	if got := sniff(Segment{Data: data[id3Size(data):]}); got != ContentTypeMP3 {
		t.Fatalf("frame sync: got %q", got)
	}
}

func TestStitchMP3AfterWAV(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "bueller.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	line, err := Decode(Segment{Data: data})
	if err != nil {
		t.Fatalf("decode mp3: %v", err)
	}
	if line.SampleRate != 44100 || len(line.Samples) == 0 {
		t.Fatalf("unexpected mp3 decode: rate=%d samples=%d", line.SampleRate, len(line.Samples))
	}

	first := toneSegment(t, time.Second, 24000, 500)
	pause := 250 * time.Millisecond
	s := NewStitcher(WAVEncoder{}, 0)
	out, err := s.Stitch(context.Background(), []Segment{first, {Data: data}}, pause)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if out.SampleRate != 24000 {
		t.Fatalf("expected first segment rate 24000, got %d", out.SampleRate)
	}
	want := time.Second + pause + line.Duration()
	if !within(out.Duration, want, 5*time.Millisecond) {
		t.Fatalf("duration %s, want about %s", out.Duration, want)
	}
}
