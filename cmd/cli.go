// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"streampump/internal/config"
	"streampump/pkg/build"

	"github.com/spf13/cobra"
)

// Commands understood by main besides running the pump.
const (
	CommandRun  = ""
	CommandList = "list"
)

// Options is the outcome of parsing the command line.
type Options struct {
	Command string
	Config  *config.Config
}

type flagValues struct {
	configPath string
	input      string
	device     int
	sampleRate float64
	lowLatency bool
	record     bool
	output     string
	tui        bool
	verbose    bool
}

// ParseArgs parses os.Args. It returns nil options when only help or the
// version was requested.
func ParseArgs() (*Options, error) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()

	var (
		flags   flagValues
		options *Options
	)

	// load reads the config file and lays the changed flags over it.
	load := func(cmd *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, cfg, &flags); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		options = &Options{Command: command, Config: cfg}
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandRun)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   CommandList,
		Short: "List available audio input devices (pick one to pump with --tui)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandList)
		},
	}
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()

	// Configuration file
	pf.StringVarP(&flags.configPath, "config", "f", "",
		"Path to a YAML config file. Default is ./config.yaml when present")

	// Input Configuration
	pf.StringVarP(&flags.input, "input", "i", "",
		"Input kind (tone, mic, stdin or -) or a .wav, .flac or .mp3 file")
	pf.IntVarP(&flags.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID for mic input. Use 'list' command to see available devices.")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate for mic, tone and stdin input, measured in Hertz (Hz)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for mic input")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record every run to a WAV file")
	pf.StringVarP(&flags.output, "output", "o", "",
		"Directory for recordings. Default is ./recordings")

	// Display Configuration
	pf.BoolVarP(&flags.tui, "tui", "t", false,
		"Show the live status view")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *flagValues) error {
	changed := cmd.Flags().Changed

	if changed("input") {
		if err := applyInput(cfg, flags.input); err != nil {
			return err
		}
	}
	if changed("device") {
		cfg.Input.Device = flags.device
	}
	if changed("sample-rate") {
		cfg.Input.SampleRate = flags.sampleRate
	}
	if changed("low-latency") {
		cfg.Input.LowLatency = flags.lowLatency
	}
	if changed("record") {
		cfg.Recording.Enabled = flags.record
	}
	if changed("output") {
		cfg.Recording.OutputDir = flags.output
		cfg.Recording.Enabled = true
	}
	if changed("tui") {
		cfg.TUI = flags.tui
	}
	if changed("verbose") && flags.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	return nil
}

// applyInput accepts an input kind, "-" for stdin, or a file path whose
// extension names the decoder.
func applyInput(cfg *config.Config, value string) error {
	switch value {
	case "-", config.InputStdin:
		cfg.Input.Kind = config.InputStdin
		return nil
	case config.InputTone, config.InputMic:
		cfg.Input.Kind = value
		return nil
	}

	kind := strings.TrimPrefix(strings.ToLower(filepath.Ext(value)), ".")
	if !config.FileInput(kind) {
		return fmt.Errorf("--input %q: expected tone, mic, stdin, - or a .wav, .flac or .mp3 file", value)
	}
	cfg.Input.Kind = kind
	cfg.Input.Path = value
	return nil
}
