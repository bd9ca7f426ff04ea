// SPDX-License-Identifier: MIT
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"stemmix/internal/config"
)

// ParseArgs parses the command line, loads the YAML configuration and
// applies flag overrides on top. Flags only override values the user
// actually set; everything else comes from the file or the defaults.
func ParseArgs() (*config.Config, error) {
	var (
		configPath      string
		outputDevice    int
		sampleRate      float64
		framesPerBuffer int
		lowLatency      bool
		listenAddress   string
		replyAddress    string
		verbose         bool
	)

	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "stemmix",
		Short:         "Multi-deck stem mixing engine with OSC control",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Root().PersistentFlags()
			if flags.Changed("device") {
				loaded.Audio.OutputDevice = outputDevice
			}
			if flags.Changed("sample-rate") {
				loaded.Audio.SampleRate = sampleRate
			}
			if flags.Changed("frames-per-buffer") {
				loaded.Audio.FramesPerBuffer = framesPerBuffer
			}
			if flags.Changed("low-latency") {
				loaded.Audio.LowLatency = lowLatency
			}
			if flags.Changed("listen") {
				loaded.Control.ListenAddress = listenAddress
			}
			if flags.Changed("reply") {
				loaded.Control.ReplyAddress = replyAddress
			}
			if flags.Changed("verbose") && verbose {
				loaded.Debug = true
				loaded.LogLevel = "debug"
			}
			if err := loaded.Validate(); err != nil {
				return err
			}

			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio output devices",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "",
		"Path to YAML configuration file (default: ./config.yaml if present)")

	// Audio output configuration
	rootCmd.PersistentFlags().IntVarP(&outputDevice, "device", "d", config.MinDeviceID,
		"Output device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per render chunk (affects latency and control staleness)")
	rootCmd.PersistentFlags().BoolVarP(&lowLatency, "low-latency", "l", false,
		"Request low latency settings from the output device")

	// Control protocol configuration
	rootCmd.PersistentFlags().StringVar(&listenAddress, "listen", config.DefaultListenAddress,
		"UDP address the OSC control server binds to")
	rootCmd.PersistentFlags().StringVar(&replyAddress, "reply", "",
		"OSC target for /status replies (empty disables)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return cfg, nil
}
