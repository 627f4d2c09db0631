// SPDX-License-Identifier: MIT
/*
Package record is the segmented-recording consumer: it drains capture
blocks from the queue, high-pass filters them, and writes fixed-duration
WAV segments until the session ends.

Rotation is driven by the sample count, not the wall clock. Segment
boundaries land on exact frame counts, and segment timestamps derive from
the session start plus the segment index, so a recording gap never shifts
later filenames.
*/
package record

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"lfnmon/internal/audio"
	"lfnmon/internal/dsp"
	applog "lfnmon/internal/log"
	"lfnmon/internal/session"
)

const (
	mkdirAttempts = 3
	mkdirBackoff  = 100 * time.Millisecond
)

// Config holds the recorder's tunables. The segment length comes from the
// session, which owns the segment timeline.
type Config struct {
	OutputDir      string
	BitDepth       int // 16, 24, or 32
	FilterCutoffHz float64
	FilterChunk    int // frames per filter chunk
	ReadTimeout    time.Duration
}

// Summary describes a finished recording run.
type Summary struct {
	OutputDir string
	Segments  int
	Frames    uint64
	Files     []string
}

// Recorder consumes capture blocks and writes them as WAV segments.
type Recorder struct {
	queue *audio.Queue
	cfg   Config

	// Stream parameters, latched from the first block.
	channels   int
	sampleRate float64
	filter     *dsp.HighPass

	// Current segment state.
	file      *os.File
	enc       *wav.Encoder
	buf       *gaudio.IntBuffer
	segIndex  int
	segFrames uint64 // frames written to the current segment
	segLimit  uint64 // frames per full segment

	totalFrames uint64
	files       []string
}

// NewRecorder creates a recorder reading from queue.
func NewRecorder(queue *audio.Queue, cfg Config) *Recorder {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &Recorder{queue: queue, cfg: cfg}
}

// Run records until the end-of-stream sentinel arrives, the queue closes,
// or the planned session duration has been captured. The final partial
// segment is flushed, and a session summary file is written alongside the
// segments.
func (r *Recorder) Run(sess *session.Session) (Summary, error) {
	if err := ensureDir(r.cfg.OutputDir); err != nil {
		return Summary{}, err
	}
	sess.SetState(session.Capturing)

	for {
		if r.plannedDone(sess) {
			break
		}

		block, err := r.queue.Pop(r.cfg.ReadTimeout)
		switch {
		case err == audio.ErrQueueTimeout:
			if sess.Stopped() {
				goto done
			}
			applog.Warnf("Recorder: no audio for %v, still waiting", r.cfg.ReadTimeout)
			continue
		case err == audio.ErrQueueClosed:
			goto done
		case err != nil:
			r.closeSegment(sess)
			return Summary{}, fmt.Errorf("queue read: %w", err)
		}

		if block.EOS() {
			break
		}
		if err := r.write(sess, block); err != nil {
			r.closeSegment(sess)
			return Summary{}, err
		}
	}

done:
	r.closeSegment(sess)
	summary := Summary{
		OutputDir: r.cfg.OutputDir,
		Segments:  len(r.files),
		Frames:    r.totalFrames,
		Files:     r.files,
	}
	if err := r.writeSessionSummary(sess, summary); err != nil {
		applog.Warnf("Recorder: session summary write failed: %v", err)
	}
	return summary, nil
}

// plannedDone reports whether the planned duration has been captured.
func (r *Recorder) plannedDone(sess *session.Session) bool {
	return r.plannedRemaining(sess) == 0
}

// plannedRemaining returns how many frames may still be written before the
// planned duration is reached, or MaxUint64 for an open-ended session.
func (r *Recorder) plannedRemaining(sess *session.Session) uint64 {
	if sess.PlannedDuration <= 0 || r.sampleRate == 0 {
		return math.MaxUint64
	}
	planned := uint64(sess.PlannedDuration.Seconds() * r.sampleRate)
	if r.totalFrames >= planned {
		return 0
	}
	return planned - r.totalFrames
}

// write filters one block and writes it, splitting across the segment
// boundary so every full segment holds exactly the same frame count.
func (r *Recorder) write(sess *session.Session, block audio.Block) error {
	if r.filter == nil {
		if err := r.latchStream(sess, block); err != nil {
			return err
		}
	}

	r.filter.ProcessChunked(block.Samples, r.cfg.FilterChunk)

	samples := block.Samples
	for len(samples) > 0 {
		if r.enc == nil {
			if err := r.openSegment(sess); err != nil {
				return err
			}
		}

		frames := uint64(len(samples)) / uint64(r.channels)
		room := r.segLimit - r.segFrames
		// The planned duration ends mid-block: anything past it is discarded.
		take := min(frames, room, r.plannedRemaining(sess))
		if take == 0 {
			break // trailing partial frame, nothing whole left to write
		}

		n := int(take) * r.channels
		if err := r.encode(samples[:n]); err != nil {
			return err
		}
		samples = samples[n:]
		r.segFrames += take
		r.totalFrames += take

		if r.segFrames == r.segLimit {
			r.closeSegment(sess)
		}
		if r.plannedDone(sess) {
			break
		}
	}
	return nil
}

// latchStream fixes the stream parameters from the first block.
func (r *Recorder) latchStream(sess *session.Session, block audio.Block) error {
	if block.Channels < 1 || block.SampleRate <= 0 {
		return fmt.Errorf("invalid stream parameters: %d channels at %v Hz", block.Channels, block.SampleRate)
	}
	r.channels = block.Channels
	r.sampleRate = block.SampleRate
	r.segLimit = uint64(sess.SegmentDuration.Seconds() * block.SampleRate)
	if r.segLimit == 0 {
		return fmt.Errorf("segment duration %v too short at %v Hz", sess.SegmentDuration, block.SampleRate)
	}

	filter, err := dsp.NewHighPass(r.cfg.FilterCutoffHz, block.SampleRate, block.Channels)
	if err != nil {
		return fmt.Errorf("filter design: %w", err)
	}
	r.filter = filter
	return nil
}

// openSegment starts the next WAV segment.
func (r *Recorder) openSegment(sess *session.Session) error {
	sess.SetState(session.Rotating)
	defer sess.SetState(session.Capturing)

	stamp := sess.SegmentStart(r.segIndex).Format("20060102_150405")
	name := fmt.Sprintf("recording_segment_%03d_%s.wav", r.segIndex, stamp)
	path := filepath.Join(r.cfg.OutputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	r.file = file
	r.enc = wav.NewEncoder(file, int(r.sampleRate), r.cfg.BitDepth, r.channels, 1)
	r.buf = &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: r.channels,
			SampleRate:  int(r.sampleRate),
		},
		SourceBitDepth: r.cfg.BitDepth,
	}
	r.segFrames = 0
	r.files = append(r.files, path)
	applog.Infof("Recorder: writing %s", name)
	return nil
}

// encode converts float samples to integer PCM and writes them.
func (r *Recorder) encode(samples []float32) error {
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]

	scale := float64(int(1)<<(r.cfg.BitDepth-1) - 1)
	for i, s := range samples {
		v := math.Round(float64(s) * scale)
		v = math.Max(-scale-1, math.Min(scale, v))
		r.buf.Data[i] = int(v)
	}

	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	return nil
}

// closeSegment finalizes the current segment, if one is open.
func (r *Recorder) closeSegment(sess *session.Session) {
	if r.enc == nil {
		return
	}
	if err := r.enc.Close(); err != nil {
		applog.Errorf("Recorder: finalize segment: %v", err)
	}
	if err := r.file.Close(); err != nil {
		applog.Errorf("Recorder: close segment file: %v", err)
	}
	r.enc = nil
	r.file = nil
	r.segIndex++
	sess.SegmentCompleted()
}

// writeSessionSummary records what the run produced.
func (r *Recorder) writeSessionSummary(sess *session.Session, summary Summary) error {
	path := filepath.Join(r.cfg.OutputDir, "session_summary.txt")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "session start:  %s\n", sess.Start.Format(time.RFC3339))
	fmt.Fprintf(f, "planned:        %v\n", sess.PlannedDuration)
	fmt.Fprintf(f, "segment length: %v\n", sess.SegmentDuration)
	fmt.Fprintf(f, "segments:       %d\n", summary.Segments)
	fmt.Fprintf(f, "frames:         %d\n", summary.Frames)
	for _, file := range summary.Files {
		fmt.Fprintf(f, "  %s\n", filepath.Base(file))
	}
	return nil
}

// ensureDir creates the output directory, retrying briefly: network mounts
// and freshly inserted media sometimes need a moment.
func ensureDir(dir string) error {
	var err error
	for attempt := range mkdirAttempts {
		if err = os.MkdirAll(dir, 0o755); err == nil {
			return nil
		}
		applog.Warnf("Recorder: create %s (attempt %d/%d): %v", dir, attempt+1, mkdirAttempts, err)
		time.Sleep(mkdirBackoff)
	}
	return fmt.Errorf("create output directory: %w", err)
}
