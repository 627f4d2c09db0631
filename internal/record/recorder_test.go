// SPDX-License-Identifier: MIT
package record

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"lfnmon/internal/audio"
	"lfnmon/internal/session"
)

// Tests run at a deliberately tiny sample rate so hours of nominal session
// time cost only thousands of frames.
const testRate = 100.0

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		OutputDir:      filepath.Join(t.TempDir(), "recordings"),
		BitDepth:       16,
		FilterCutoffHz: 1,
		FilterChunk:    512,
		ReadTimeout:    time.Second,
	}
}

// fillQueue feeds frames of a 5 Hz tone in blocks of blockFrames from a
// background producer, closing the queue when done. A consumer that stops
// early closes the queue itself; the producer just winds down.
func fillQueue(t *testing.T, q *audio.Queue, frames, blockFrames, channels int) {
	t.Helper()
	t.Cleanup(q.Close)
	go func() {
		seq := uint64(0)
		for pushed := 0; pushed < frames; pushed += blockFrames {
			n := min(blockFrames, frames-pushed)
			samples := make([]float32, n*channels)
			for i := range n {
				v := 0.5 * float32(math.Sin(2*math.Pi*5*float64(pushed+i)/testRate))
				for ch := range channels {
					samples[i*channels+ch] = v
				}
			}
			seq++
			if q.Push(audio.Block{Samples: samples, Channels: channels, SampleRate: testRate, Seq: seq}) != nil {
				return
			}
		}
		q.Close()
	}()
}

func newQueue(t *testing.T, capacity int) *audio.Queue {
	t.Helper()
	q, err := audio.NewQueue(capacity, audio.Backpressure)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	return q
}

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "recording_segment_") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files
}

func decodeFrames(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return len(buf.Data) / buf.Format.NumChannels
}

func TestRecorderRotatesSegmentsBySampleCount(t *testing.T) {
	// A nominal 90-minute session in 30-minute segments: exactly three
	// full segments.
	q := newQueue(t, 256)
	cfg := testConfig(t)
	sess := session.New(90*time.Minute, 30*time.Minute)

	segFrames := int(30 * 60 * testRate)
	// Block size does not divide the segment length, so rotation must
	// split blocks at the boundary.
	fillQueue(t, q, 3*segFrames, 700, 1)

	summary, err := NewRecorder(q, cfg).Run(sess)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Segments != 3 {
		t.Fatalf("Segments = %d, want 3", summary.Segments)
	}
	if sess.SegmentsCompleted() != 3 {
		t.Errorf("session SegmentsCompleted() = %d, want 3", sess.SegmentsCompleted())
	}

	files := segmentFiles(t, cfg.OutputDir)
	if len(files) != 3 {
		t.Fatalf("got %d segment files, want 3: %v", len(files), files)
	}
	for i, name := range files {
		if frames := decodeFrames(t, filepath.Join(cfg.OutputDir, name)); frames != segFrames {
			t.Errorf("%s holds %d frames, want %d", name, frames, segFrames)
		}
		wantStamp := sess.SegmentStart(i).Format("20060102_150405")
		if !strings.Contains(name, wantStamp) {
			t.Errorf("%s missing timestamp %s", name, wantStamp)
		}
	}
}

func TestRecorderFlushesPartialFinalSegment(t *testing.T) {
	q := newQueue(t, 256)
	cfg := testConfig(t)
	sess := session.New(0, 30*time.Minute)

	segFrames := int(30 * 60 * testRate)
	fillQueue(t, q, segFrames+segFrames/2, 1000, 1)

	summary, err := NewRecorder(q, cfg).Run(sess)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Segments != 2 {
		t.Fatalf("Segments = %d, want 2 (one full, one partial)", summary.Segments)
	}

	files := segmentFiles(t, cfg.OutputDir)
	if got := decodeFrames(t, filepath.Join(cfg.OutputDir, files[0])); got != segFrames {
		t.Errorf("full segment holds %d frames, want %d", got, segFrames)
	}
	if got := decodeFrames(t, filepath.Join(cfg.OutputDir, files[1])); got != segFrames/2 {
		t.Errorf("partial segment holds %d frames, want %d", got, segFrames/2)
	}
}

func TestRecorderSegmentSizeIndependentOfSessionLength(t *testing.T) {
	// The first full segment must weigh the same no matter how long the
	// session is planned to run.
	sizes := make([]int64, 0, 3)
	for _, planned := range []time.Duration{time.Hour, 8 * time.Hour, 24 * time.Hour} {
		q := newQueue(t, 256)
		cfg := testConfig(t)
		sess := session.New(planned, 10*time.Minute)

		segFrames := int(10 * 60 * testRate)
		fillQueue(t, q, 2*segFrames, 500, 1)

		if _, err := NewRecorder(q, cfg).Run(sess); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		files := segmentFiles(t, cfg.OutputDir)
		if len(files) == 0 {
			t.Fatal("no segments written")
		}
		info, err := os.Stat(filepath.Join(cfg.OutputDir, files[0]))
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, info.Size())
	}
	if sizes[0] != sizes[1] || sizes[1] != sizes[2] {
		t.Errorf("segment sizes differ across session lengths: %v", sizes)
	}
}

func TestRecorderStopsAtPlannedDuration(t *testing.T) {
	q := newQueue(t, 256)
	cfg := testConfig(t)
	// Ten minutes planned, but twenty minutes of audio queued.
	sess := session.New(10*time.Minute, 10*time.Minute)

	fillQueue(t, q, int(20*60*testRate), 1000, 1)

	summary, err := NewRecorder(q, cfg).Run(sess)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := uint64(10 * 60 * testRate); summary.Frames != want {
		t.Errorf("Frames = %d, want exactly %d (planned duration)", summary.Frames, want)
	}
	if summary.Segments != 1 {
		t.Errorf("Segments = %d, want 1", summary.Segments)
	}
}

func TestRecorderStopsMidBlockAtPlannedDuration(t *testing.T) {
	q := newQueue(t, 256)
	cfg := testConfig(t)
	sess := session.New(10*time.Minute, 10*time.Minute)

	// 700-frame blocks do not divide the 60000 planned frames; the last
	// block must be truncated, not written whole.
	fillQueue(t, q, int(20*60*testRate), 700, 1)

	summary, err := NewRecorder(q, cfg).Run(sess)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := uint64(10 * 60 * testRate)
	if summary.Frames != want {
		t.Errorf("Frames = %d, want exactly %d", summary.Frames, want)
	}

	files := segmentFiles(t, cfg.OutputDir)
	if len(files) != 1 {
		t.Fatalf("got %d segments, want 1", len(files))
	}
	if got := decodeFrames(t, filepath.Join(cfg.OutputDir, files[0])); got != int(want) {
		t.Errorf("segment holds %d frames, want %d", got, want)
	}
}

func TestRecorderFiltersDCOffset(t *testing.T) {
	q := newQueue(t, 64)
	cfg := testConfig(t)
	sess := session.New(0, time.Minute)

	// A constant 0.5 offset; the high-pass filter must have removed it by
	// the end of the segment.
	frames := int(60 * testRate)
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = 0.5
	}
	if err := q.Push(audio.Block{Samples: samples, Channels: 1, SampleRate: testRate, Seq: 1}); err != nil {
		t.Fatal(err)
	}
	q.Close()

	if _, err := NewRecorder(q, cfg).Run(sess); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	files := segmentFiles(t, cfg.OutputDir)
	if len(files) != 1 {
		t.Fatalf("got %d segments, want 1", len(files))
	}
	f, err := os.Open(filepath.Join(cfg.OutputDir, files[0]))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}

	scale := float64(int(1)<<15 - 1)
	var peak float64
	for _, v := range buf.Data[len(buf.Data)/2:] {
		if a := math.Abs(float64(v)) / scale; a > peak {
			peak = a
		}
	}
	if peak > 0.01 {
		t.Errorf("residual DC in recording = %v, want < 0.01", peak)
	}
}

func TestRecorderStereo(t *testing.T) {
	q := newQueue(t, 256)
	cfg := testConfig(t)
	sess := session.New(0, time.Minute)

	frames := int(60 * testRate)
	fillQueue(t, q, frames, 500, 2)

	summary, err := NewRecorder(q, cfg).Run(sess)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Frames != uint64(frames) {
		t.Errorf("Frames = %d, want %d", summary.Frames, frames)
	}

	files := segmentFiles(t, cfg.OutputDir)
	f, err := os.Open(filepath.Join(cfg.OutputDir, files[0]))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if buf.Format.NumChannels != 2 {
		t.Errorf("NumChannels = %d, want 2", buf.Format.NumChannels)
	}
}

func TestRecorderWritesSessionSummary(t *testing.T) {
	q := newQueue(t, 64)
	cfg := testConfig(t)
	sess := session.New(0, time.Minute)

	fillQueue(t, q, int(60*testRate), 1000, 1)

	if _, err := NewRecorder(q, cfg).Run(sess); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "session_summary.txt"))
	if err != nil {
		t.Fatalf("session summary missing: %v", err)
	}
	if !strings.Contains(string(data), "segments:       1") {
		t.Errorf("summary content:\n%s", data)
	}
}

func TestEnsureDirGivesUpEventually(t *testing.T) {
	// A regular file where the directory should go cannot be mkdir'd.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ensureDir(filepath.Join(blocker, "recordings")); err == nil {
		t.Error("ensureDir() error = nil, want failure after retries")
	}
}

func TestRecorderRejectsInvalidFirstBlock(t *testing.T) {
	q := newQueue(t, 4)
	cfg := testConfig(t)
	sess := session.New(0, time.Minute)

	if err := q.Push(audio.Block{Samples: []float32{1, 2}, Channels: 0, SampleRate: testRate, Seq: 1}); err != nil {
		t.Fatal(err)
	}
	q.Close()

	if _, err := NewRecorder(q, cfg).Run(sess); err == nil {
		t.Error("Run() error = nil, want invalid stream parameters")
	}
}
