package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"audio-sync/internal/bootstrap"
	"audio-sync/internal/config"
	"audio-sync/internal/diagnostics"
	"audio-sync/internal/domain"
	"audio-sync/internal/profile"
	"audio-sync/internal/remux"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use:           "audiosync",
		Short:         "Replace the audio track of a video with a time-shifted one",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			level, err := config.LoggerLevel(settings, LoggerLevel, cmd.Flags().Changed("log-level"))
			if err != nil {
				return fmt.Errorf("%s: %w", ConfigPath, err)
			}
			l := logger.FromCtx(ctx).WithLevel(level)
			ctx = logger.CtxWithLogger(ctx, l)
			cmd.SetContext(ctx)
			logger.Debugf(ctx, "log-level: %v, config: %s", level, ConfigPath)
			return nil
		},
	}

	Merge = &cobra.Command{
		Use:   "merge",
		Short: "Shift an audio track and mux it into a video",
		Args:  cobra.ExactArgs(0),
		RunE:  merge,
	}

	Profile = &cobra.Command{
		Use:   "profile",
		Short: "Show the encode profile picked for this machine",
		Args:  cobra.ExactArgs(0),
		RunE:  showProfile,
	}

	Check = &cobra.Command{
		Use:   "check",
		Short: "Check ffmpeg, directories and the encode profile",
		Args:  cobra.ExactArgs(0),
		RunE:  check,
	}

	GUI = &cobra.Command{
		Use:   "gui",
		Short: "Run the desktop app, serving ./frontend",
		Args:  cobra.ExactArgs(0),
		RunE:  gui,
	}

	LoggerLevel = logger.LevelWarning
	ConfigPath  = config.DefaultPath()

	mergeFlags struct {
		video      string
		audio      string
		offset     string
		outputDir  string
		scratchDir string
		audioCodec string
	}
	showAllProfiles bool
)

func init() {
	Root.PersistentFlags().Var(&LoggerLevel, "log-level", "")
	Root.PersistentFlags().StringVar(&ConfigPath, "config", ConfigPath, "the path to the settings file (.yaml or .json)")

	addMergeFlags(Merge.Flags())

	Profile.Flags().BoolVar(&showAllProfiles, "all", false, "list every profile")

	Root.AddCommand(Merge)
	Root.AddCommand(Profile)
	Root.AddCommand(Check)
	Root.AddCommand(GUI)
}

func addMergeFlags(flags *pflag.FlagSet) {
	flags.StringVar(&mergeFlags.video, "video", "", "source video file")
	flags.StringVar(&mergeFlags.audio, "audio", "", "replacement audio file")
	flags.StringVar(&mergeFlags.offset, "offset", "0", "seconds; negative trims the audio start, positive delays it")
	flags.StringVar(&mergeFlags.outputDir, "output-dir", "", "where to write the result (default: next to the video)")
	flags.StringVar(&mergeFlags.scratchDir, "scratch-dir", "", "where to write the adjusted audio track")
	flags.StringVar(&mergeFlags.audioCodec, "audio-codec", "", "audio codec of the result")
}

func loadSettings() (domain.Settings, error) {
	settings, err := config.NewFileStore(ConfigPath).Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// overrideSettings applies non-empty merge flags on top of the settings file.
func overrideSettings(settings domain.Settings) domain.Settings {
	if mergeFlags.outputDir != "" {
		settings.OutputDir = mergeFlags.outputDir
	}
	if mergeFlags.scratchDir != "" {
		settings.ScratchDir = mergeFlags.scratchDir
	}
	if mergeFlags.audioCodec != "" {
		settings.AudioCodec = mergeFlags.audioCodec
	}
	return settings
}

func merge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	settings = overrideSettings(settings)

	out := cmd.OutOrStdout()
	result, err := remux.NewPipeline(settings).Run(ctx, remux.Request{
		Job: domain.SyncJob{
			VideoPath:  mergeFlags.video,
			AudioPath:  mergeFlags.audio,
			OffsetText: mergeFlags.offset,
			OutputDir:  settings.OutputDir,
			ScratchDir: settings.ScratchDir,
			AudioCodec: settings.AudioCodec,
		},
		OnStage: func(stage remux.Stage) {
			fmt.Fprintf(out, "[%s]\n", stage)
		},
		OnLog: func(log remux.CommandLog) {
			logger.Debugf(ctx, "%s %s -> exit %d", log.Command, strings.Join(log.Args, " "), log.ExitCode)
		},
		OnProgress: func(p remux.Progress) {
			printProgress(out, p)
		},
	})
	if err != nil {
		return errors.New(bootstrap.UserMessage(err))
	}

	logger.Infof(ctx, "%s with %s", result.Instruction, result.Profile.Name)
	if result.CleanupWarning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", result.CleanupWarning)
	}
	fmt.Fprintf(out, "Audio replaced successfully with sync!\nSaved as %s\n", result.OutputPath)
	return nil
}

func printProgress(out io.Writer, p remux.Progress) {
	if p.Percent < 0 {
		fmt.Fprintf(out, "  %.1fs encoded (%.2fx)\n", p.OutTimeSeconds, p.Speed)
		return
	}
	fmt.Fprintf(out, "  %5.1f%%\n", p.Percent)
}

func showProfile(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	selector := profile.NewSelector(profile.Options{VaapiDevice: settings.VaapiDevice})
	hint, p := selector.Select()

	var view any = profile.View(hint, p, true)
	if showAllProfiles {
		view = profile.Catalog(hint, selector.Options)
	}
	return writeYAML(cmd.OutOrStdout(), view)
}

func check(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	report := diagnostics.NewChecker(settings).Run(settings)
	out := cmd.OutOrStdout()
	for _, item := range report.Items {
		fmt.Fprintf(out, "%-5s %-18s %s\n", strings.ToUpper(string(item.Status)), item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(out, "      %s\n", item.Hint)
		}
	}
	if report.HasFailures {
		return fmt.Errorf("some checks failed")
	}
	return nil
}

func gui(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cmd.Context(), ConfigPath)
	if err != nil {
		return fmt.Errorf("bootstrap app: %w", err)
	}
	return app.Run()
}

func writeYAML(w io.Writer, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to serialize: %w", err)
	}
	_, err = w.Write(b)
	return err
}

