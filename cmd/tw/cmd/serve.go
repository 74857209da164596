package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/daviddao/timewarp"
	"github.com/daviddao/timewarp/pkg/api"
	"github.com/daviddao/timewarp/pkg/fixtures"
	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/daviddao/timewarp/pkg/sweeper"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func (c *command) initServeCmd() (err error) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the timewarp server",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			level, err := logging.ParseVerbosity(c.config.GetString(optionNameVerbosity))
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), level)

			cfg, err := c.timeTravelConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, serveOptions{
				Addr:         c.config.GetString(optionNameAPIAddr),
				DBPath:       c.config.GetString(optionNameDBPath),
				Fixtures:     c.config.GetString(optionNameFixtures),
				PollInterval: c.config.GetDuration(optionNamePollInterval),
				OutboxSize:   c.config.GetInt(optionNameOutboxSize),
				TimeTravel:   cfg,
				Logger:       logger,
			})
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().String(optionNameAPIAddr, ":9080", "HTTP API listen address")
	cmd.Flags().String(optionNameDBPath, "timewarp.db", "SQLite database of the virtual data store")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
	cmd.Flags().Duration(optionNamePollInterval, sweeper.DefaultInterval, "real-time interval between sweeps")
	cmd.Flags().Int(optionNameOutboxSize, sweeper.DefaultOutboxSize, "number of delivered responses kept for polling")
	cmd.Flags().String(optionNameFixtures, "", "YAML file with entities, rules and responses to load at start")
	cmd.Flags().Bool(optionNameTimeTravelEnabled, false, "start with time travel enabled")
	cmd.Flags().String(optionNameInitialTime, "", "initial virtual time (RFC3339), defaults to now")
	cmd.Flags().Float64(optionNameScaleFactor, 1, "time scale factor")
	cmd.Flags().Bool(optionNameEnableScheduling, true, "deliver scheduled responses on each sweep")

	c.root.AddCommand(cmd)
	return nil
}

func (c *command) timeTravelConfig() (timetravel.Config, error) {
	cfg := timetravel.DefaultConfig()
	cfg.Enabled = c.config.GetBool(optionNameTimeTravelEnabled)
	cfg.ScaleFactor = c.config.GetFloat64(optionNameScaleFactor)
	cfg.EnableScheduling = c.config.GetBool(optionNameEnableScheduling)
	if v := c.config.GetString(optionNameInitialTime); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", optionNameInitialTime, err)
		}
		cfg.InitialTime = &t
	}
	if cfg.ScaleFactor <= 0 {
		return cfg, fmt.Errorf("%s must be positive, got %v", optionNameScaleFactor, cfg.ScaleFactor)
	}
	return cfg, nil
}

type serveOptions struct {
	Addr         string
	DBPath       string
	Fixtures     string
	PollInterval time.Duration
	OutboxSize   int
	TimeTravel   timetravel.Config
	Logger       logging.Logger
	// Ready receives the bound listener address once the server accepts
	// connections.
	Ready chan<- string
}

func serve(ctx context.Context, o serveOptions) (err error) {
	logger := o.Logger

	st, err := store.New(o.DBPath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	m := timetravel.New(o.TimeTravel, timetravel.Options{Logger: logger})
	defer m.Close()

	if o.Fixtures != "" {
		f, err := fixtures.Load(o.Fixtures)
		if err != nil {
			st.Close()
			return fmt.Errorf("fixtures: %w", err)
		}
		if err := f.Apply(ctx, st, m.Mutations(), m.Scheduler(), m.Now()); err != nil {
			st.Close()
			return fmt.Errorf("fixtures %s: %w", o.Fixtures, err)
		}
		logger.Infof("loaded fixtures from %s", o.Fixtures)
	}

	sw := sweeper.New(m, st, st, sweeper.Options{
		Logger:     logger,
		Interval:   o.PollInterval,
		OutboxSize: o.OutboxSize,
	})

	registry := api.NewMetricsRegistry(timewarp.Version)
	apiService := api.New(api.Options{
		Manager:  m,
		Sweeper:  sw,
		Store:    st,
		Logger:   logger,
		Registry: registry,
	})
	registry.MustRegister(apiService.Metrics()...)
	registry.MustRegister(m.Metrics()...)
	registry.MustRegister(sw.Metrics()...)

	ln, err := net.Listen("tcp", o.Addr)
	if err != nil {
		st.Close()
		return fmt.Errorf("api listener: %w", err)
	}
	server := &http.Server{
		Handler:           apiService,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof("api address: %s", ln.Addr())
	if o.Ready != nil {
		o.Ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	var errs *multierror.Error
	if err := g.Wait(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := st.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("store close: %w", err))
	}
	return errs.ErrorOrNil()
}

