// SPDX-License-Identifier: MIT
// Package cmd parses the command line into a validated run configuration.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"lfnmon/internal/config"
	"lfnmon/pkg/build"
)

// Command selects what the process should do after parsing.
type Command int

const (
	// CommandMonitor runs the live analysis pipeline. It is the default.
	CommandMonitor Command = iota
	// CommandList prints (or browses) the host's audio devices.
	CommandList
	// CommandRecord runs a segmented recording session.
	CommandRecord
)

// Options is the parsed command line: which command to run and the full
// configuration, with flag values layered over the config file.
type Options struct {
	Command     Command
	Config      *config.Config
	Interactive bool          // list: browse devices in the TUI
	Duration    time.Duration // record: planned session length, 0 = until stopped
}

// ParseArgs builds the cobra command tree, executes it against os.Args,
// and returns the resolved options. A nil Options with nil error means a
// terminating flag (--help, --version) already handled the invocation.
func ParseArgs() (*Options, error) {
	buildInfo := build.GetBuildInfo()
	opts := &Options{Command: CommandMonitor}

	var (
		configPath string
		device     int
		sampleRate float64
		verbose    bool
		hours      float64
		duration   time.Duration
		segment    time.Duration
		outputDir  string
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Low-frequency noise monitor and segmented recorder",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// Flags the user actually set override the config file.
			if cmd.Flags().Changed("device") {
				cfg.Audio.InputDevice = device
			}
			if cmd.Flags().Changed("sample-rate") {
				cfg.Audio.SampleRate = sampleRate
			}
			if verbose {
				cfg.LogLevel = "debug"
			}
			opts.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandMonitor
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandList
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false,
		"Browse devices in an interactive TUI")
	rootCmd.AddCommand(listCmd)

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record segmented WAV files from the input device",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandRecord
			switch {
			case cmd.Flags().Changed("duration"):
				opts.Duration = duration
			case cmd.Flags().Changed("hours"):
				opts.Duration = time.Duration(hours * float64(time.Hour))
			}
			if cmd.Flags().Changed("segment") {
				opts.Config.Recording.SegmentDuration = segment
			}
			if cmd.Flags().Changed("output") {
				opts.Config.Recording.OutputDir = outputDir
			}
			return opts.Config.Validate()
		},
	}
	recordCmd.Flags().Float64Var(&hours, "hours", 0,
		"Session length in hours (0 = record until interrupted)")
	recordCmd.Flags().DurationVar(&duration, "duration", 0,
		"Session length as a duration, e.g. 90m (takes precedence over --hours)")
	recordCmd.Flags().DurationVar(&segment, "segment", 0,
		"Segment length, e.g. 30m")
	recordCmd.Flags().StringVarP(&outputDir, "output", "o", "",
		"Directory for recorded segments")
	rootCmd.AddCommand(recordCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML config file")
	rootCmd.PersistentFlags().IntVarP(&device, "device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", 0,
		"Requested sample rate in Hertz (0 = negotiate)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if opts.Config == nil {
		// --help or --version short-circuited before PersistentPreRunE.
		return nil, nil
	}
	return opts, nil
}
