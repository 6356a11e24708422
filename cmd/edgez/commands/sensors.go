package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zoobzio/edgez"
	"github.com/zoobzio/edgez/logging"
)

// Reading is one simulated sensor value.
type Reading struct {
	Sensor string
	Value  float64
	Time   time.Time
}

func bySensor(r Reading) string { return r.Sensor }

func readingValue(r Reading) float64 { return r.Value }

// buildSensors wires the sample topology: polled readings, a sliding window
// of the last readings per sensor, summary statistics and a pressure
// reliever in front of out.
func buildSensors(top *edgez.Topology, cfg Config, rng *rand.Rand, out func(edgez.Summary[string]) error) error {
	readings, err := edgez.Poll(top, cfg.Interval, func() (Reading, bool, error) {
		sensor := fmt.Sprintf("sensor-%d", rng.Intn(cfg.Sensors))
		return Reading{
			Sensor: sensor,
			Value:  20 + rng.NormFloat64()*2,
			Time:   top.Clock().Now(),
		}, true, nil
	})
	if err != nil {
		return err
	}
	readings.Tag("readings")

	w, err := edgez.Last(readings, cfg.Window, bySensor)
	if err != nil {
		return err
	}
	summaries := edgez.Aggregate(w, edgez.Stats[Reading, string](readingValue)).Tag("summaries")

	relieved, err := edgez.PressureRelieve(summaries, cfg.Relief, func(s edgez.Summary[string]) string {
		return s.Key
	})
	if err != nil {
		return err
	}
	relieved.Sink(out)
	return top.Err()
}

func NewSensorsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "sensors",
		Short: "Aggregate simulated sensor readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.NewLogger().Named("sensors")
			defer func() { _ = logger.Sync() }()
			return runSensors(cmd.Context(), cfg, logger)
		},
	}
	addConfigFlags(command)
	return command
}

func runSensors(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	opts := []edgez.Option{edgez.WithLogger(logger)}
	var srv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, edgez.WithMetrics(reg))
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			err = multierr.Append(err, srv.Shutdown(context.Background()))
		}()
	}

	top := edgez.NewTopology("sensors", opts...)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	err = buildSensors(top, cfg, rng, func(s edgez.Summary[string]) error {
		logger.Infow("Summary",
			"sensor", s.Key,
			"count", s.Count,
			"min", s.Min,
			"max", s.Max,
			"mean", s.Mean,
			"stddev", s.StdDev,
		)
		return nil
	})
	if err != nil {
		return err
	}

	j, err := top.Submit(ctx)
	if err != nil {
		return err
	}
	logger.Infow("Started", "job", j.Name(), "run", j.ID().String())

	select {
	case <-ctx.Done():
	case <-j.Executor().Failed():
	}
	return multierr.Append(j.Err(), j.Close(context.Background()))
}
