package config

import "time"

// Core constants bounding the capture pipeline.
const (
	// DefaultSampleRate is the system fallback rate tried during
	// negotiation before the device's own default.
	DefaultSampleRate = 44100

	// MinDeviceID (-1) selects the system default input device.
	MinDeviceID = -1

	// Hardware limits.
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxInputStreams = 2      // Channel count is clamped to stereo

	// DefaultQueueCapacity bounds the block queue between the capture
	// callback and the consumer.
	DefaultQueueCapacity = 10

	// DefaultReadTimeout is how long the consumer waits on an empty queue
	// before logging a stall warning and waiting again.
	DefaultReadTimeout = 60 * time.Second
)

// Queue overflow policies. See audio.Queue.
const (
	PolicyBlock      = "block"
	PolicyDropOldest = "drop_oldest"
)

// Config is the root application configuration, loaded from YAML with flag
// overrides applied afterwards.
type Config struct {
	LogLevel     string          `yaml:"log_level"`                // "debug", "info", "warn", "error"
	DBPath       string          `yaml:"db_path"`                  // SQLite measurement/alert store
	AlertLogPath string          `yaml:"alert_log_path,omitempty"` // Optional JSON mirror of the alerts table
	Audio        AudioConfig     `yaml:"audio"`
	Queue        QueueConfig     `yaml:"queue"`
	Monitor      MonitorConfig   `yaml:"monitor"`
	Recording    RecordingConfig `yaml:"recording"`
	Transport    TransportConfig `yaml:"transport"`
}

// AudioConfig holds device and stream settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default)
	SampleRate      float64 `yaml:"sample_rate"`       // Requested rate in Hz (0 = negotiate)
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames delivered per capture callback
	LowLatency      bool    `yaml:"low_latency"`       // Request low-latency device settings
}

// QueueConfig bounds the producer/consumer queue.
type QueueConfig struct {
	Capacity    int           `yaml:"capacity"`     // Maximum queued blocks; never grows
	Policy      string        `yaml:"policy"`       // "block" or "drop_oldest"
	ReadTimeout time.Duration `yaml:"read_timeout"` // Consumer empty-queue wait before warning
}

// BandConfig defines one monitored frequency band and its alert threshold.
type BandConfig struct {
	Name        string  `yaml:"name"`
	LowHz       float64 `yaml:"low_hz"`
	HighHz      float64 `yaml:"high_hz"`
	ThresholdDB float64 `yaml:"threshold_db"` // Alerts fire on strictly greater levels
}

// MonitorConfig holds live-monitoring analysis settings.
type MonitorConfig struct {
	Bands         []BandConfig `yaml:"bands"`
	WindowSeconds int          `yaml:"window_seconds"` // Accumulated audio per analysis window
	NPerSeg       int          `yaml:"nperseg"`        // Spectrogram segment length (power of 2)
	NOverlap      int          `yaml:"noverlap"`       // Spectrogram segment overlap
	Window        string       `yaml:"window"`         // Window function name (e.g. "hann")
	SummaryDir    string       `yaml:"summary_dir"`    // Per-window summary files ("" disables)
}

// RecordingConfig holds long-duration recording settings.
type RecordingConfig struct {
	OutputDir       string        `yaml:"output_dir"`
	SegmentDuration time.Duration `yaml:"segment_duration"` // Per-file rotation interval
	BitDepth        int           `yaml:"bit_depth"`        // WAV sample width (16, 24, 32)
	FilterCutoffHz  float64       `yaml:"filter_cutoff_hz"` // Rumble-correction high-pass cutoff
	FilterChunk     int           `yaml:"filter_chunk"`     // Samples filtered per chunk
}

// TransportConfig holds live measurement broadcast settings.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketPort    string        `yaml:"websocket_port"`
	MinSendInterval  time.Duration `yaml:"min_send_interval"` // Broadcast rate limit
}

// NewConfig returns a Config with the built-in defaults: the bands and
// thresholds of a low-frequency noise monitor (LFN 20-100 Hz at 45 dB,
// ultrasonic 20-24 kHz at 50 dB) with 30-minute recording segments.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		DBPath:   "lfn_live_log.db",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      0,
			FramesPerBuffer: 1024,
			LowLatency:      false,
		},
		Queue: QueueConfig{
			Capacity:    DefaultQueueCapacity,
			Policy:      PolicyBlock,
			ReadTimeout: DefaultReadTimeout,
		},
		Monitor: MonitorConfig{
			Bands: []BandConfig{
				{Name: "lfn", LowHz: 20, HighHz: 100, ThresholdDB: 45},
				{Name: "ultrasonic", LowHz: 20000, HighHz: 24000, ThresholdDB: 50},
			},
			WindowSeconds: 5,
			NPerSeg:       2048,
			NOverlap:      1536,
			Window:        "hann",
			SummaryDir:    "",
		},
		Recording: RecordingConfig{
			OutputDir:       "recordings",
			SegmentDuration: 30 * time.Minute,
			BitDepth:        16,
			FilterCutoffHz:  10,
			FilterChunk:     1 << 20,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketPort:    "8080",
			MinSendInterval:  250 * time.Millisecond,
		},
	}
}
