package main

import (
	"context"
	"image"
	"os"
	"os/signal"
	"runtime"

	"github.com/kenya-sk/CIP/config"
	"github.com/kenya-sk/CIP/cvflow"
	"github.com/kenya-sk/CIP/dataset"
	"github.com/kenya-sk/CIP/denseflow"
	"github.com/kenya-sk/CIP/pipeline"
	"github.com/kenya-sk/CIP/stabilize"
	"github.com/kenya-sk/CIP/video"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	config   string
	logLevel string
	workers  int
}

func newRootCmd() *cobra.Command {
	opts := new(options)
	cmd := &cobra.Command{
		Use:   "cip",
		Short: "Detect cell divisions from the reversal of cumulative optical flow",
		Long: `Stabilize time-lapse image stacks, accumulate their optical flow,
find pixels where neighbouring flow reverses and cluster them into events.
Stages read and write the files named in the configuration.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.config, "config", config.DefaultPath, "INI configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.IntVar(&opts.workers, "workers", 0, "Maximum number of concurrent workers, overrides DEFAULT.WORKERS (0: number of CPUs)")

	cmd.AddCommand(
		stabilizeCmd(opts),
		cumulateCmd(opts),
		dotCmd(opts),
		detectCmd(opts),
		runCmd(opts),
	)
	return cmd
}

func stabilizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stabilize",
		Short: "Estimate the drift of every frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			if err := p.CheckFrameSize(); err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			_, err = p.Stabilize(ctx)
			return err
		},
	}
}

func cumulateCmd(opts *options) *cobra.Command {
	var (
		page  int
		naive bool
	)
	cmd := &cobra.Command{
		Use:   "cumulate",
		Short: "Estimate and accumulate the optical flow of stabilized frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			p.Naive = naive
			if !cmd.Flags().Changed("page") {
				page = p.Config.Cumulative.Page
			}
			o, pages, err := loadPages(p, page)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return p.Cumulate(ctx, o, pages)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page to process, overrides CUMULATIVE.PAGE (0: all pages)")
	cmd.Flags().BoolVar(&naive, "naive", false, "Walk every pixel through the whole window")
	return cmd
}

func dotCmd(opts *options) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Compute the reversal score of cumulative flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("page") {
				page = p.Config.Cumulative.Page
			}
			o, pages, err := loadPages(p, page)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return p.Dot(ctx, o, pages)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page to process, overrides CUMULATIVE.PAGE (0: all pages)")
	return cmd
}

func detectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Cluster reversal points into events and write the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			o, err := p.LoadOffsets()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return p.Detect(ctx, o)
		},
	}
}

func runCmd(opts *options) *cobra.Command {
	var naive bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			p.Naive = naive
			ctx, stop := signalContext()
			defer stop()
			return p.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&naive, "naive", false, "Walk every pixel through the whole window")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func loadPages(p *pipeline.Pipeline, page int) (*stabilize.Offsets, []int, error) {
	pages, err := p.Pages(page)
	if err != nil {
		return nil, nil, err
	}
	o, err := p.LoadOffsets()
	if err != nil {
		return nil, nil, err
	}
	return o, pages, nil
}

// setup configures logging and builds the pipeline from the configuration.
func setup(cmd *cobra.Command, opts *options) (*pipeline.Pipeline, error) {
	level, err := log.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(opts.config)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = opts.workers
		if cfg.Workers <= 0 {
			cfg.Workers = runtime.GOMAXPROCS(0)
		}
	}
	info, err := dataset.ReadInfo(cfg.BaseDir, cfg.Prefix, cfg.Level)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"config": opts.config,
		"times":  info.TimeMax,
		"pages":  info.PageMax,
	}).Info("dataset")

	canvas := stabilize.DefaultCanvas
	p := &pipeline.Pipeline{
		Config:  cfg,
		Source:  &dataset.Dir{Base: cfg.BaseDir, Prefix: cfg.Prefix, Level: cfg.Level, Size: canvas.Raw},
		Info:    info,
		Canvas:  canvas,
		Tracker: cvflow.DefaultLucasKanade,
		Log:     log.StandardLogger(),
	}
	switch cfg.Cumulative.Estimator {
	case "farneback":
		p.Estimator = cvflow.DefaultFarneback
	case "hornschunck":
		p.Estimator = denseflow.DefaultHornSchunck
	default:
		return nil, errors.Errorf("unknown estimator: %s", cfg.Cumulative.Estimator)
	}
	scale := cfg.Video.Scale
	p.Record = func(fname string, size image.Point) (pipeline.Recorder, error) {
		w, err := video.Create(fname, size, scale)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return p, nil
}
