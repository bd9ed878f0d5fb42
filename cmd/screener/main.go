package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/signalsfoundry/conjunction-screener/core"
	"github.com/signalsfoundry/conjunction-screener/internal/logging"
	"github.com/signalsfoundry/conjunction-screener/internal/observability"
	"github.com/signalsfoundry/conjunction-screener/kb"
	"github.com/signalsfoundry/conjunction-screener/model"
)

type options struct {
	tlePath     string
	start       time.Time
	horizon     time.Duration
	segment     time.Duration
	interval    time.Duration
	threshold   float64
	workers     int
	secondary   map[string]bool
	masked      map[string]bool
	metricsAddr string
}

func main() {
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Error(ctx, "screening failed", logging.Err(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("screener", flag.ContinueOnError)
	tlePath := fs.String("tles", "", "path to a file of two- or three-line element sets")
	start := fs.String("start", "", "screening start time (RFC3339); defaults to now")
	horizon := fs.Duration("horizon", 24*time.Hour, "screening horizon")
	segment := fs.Duration("segment", 2*time.Minute, "length of each fitted trajectory segment")
	interval := fs.Duration("interval", 10*time.Minute, "conjunction detection step width")
	threshold := fs.Float64("threshold", 10, "conjunction distance threshold in km")
	workers := fs.Int("workers", 0, "concurrent steps (0 = number of CPUs)")
	secondary := fs.String("secondary", "", "comma-separated NORAD ids screened against primaries only")
	masked := fs.String("masked", "", "comma-separated NORAD ids excluded from screening")
	metricsAddr := fs.String("metrics-addr", "", "HTTP address for Prometheus /metrics while screening")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if *tlePath == "" {
		return options{}, errors.New("-tles is required")
	}
	opts := options{
		tlePath:     *tlePath,
		start:       time.Now().UTC(),
		horizon:     *horizon,
		segment:     *segment,
		interval:    *interval,
		threshold:   *threshold,
		workers:     *workers,
		secondary:   idSet(*secondary),
		masked:      idSet(*masked),
		metricsAddr: *metricsAddr,
	}
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return options{}, fmt.Errorf("invalid -start: %w", err)
		}
		opts.start = t.UTC()
	}
	return opts, nil
}

func idSet(csv string) map[string]bool {
	set := make(map[string]bool)
	for _, id := range strings.Split(csv, ",") {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = true
		}
	}
	return set
}

// reportLine is the JSON lines output format.
type reportLine struct {
	TCA       time.Time  `json:"tca"`
	DCAKm     float64    `json:"dca_km"`
	RelSpeed  float64    `json:"rel_speed_km_s"`
	NameI     string     `json:"name_i"`
	NoradI    string     `json:"norad_i"`
	NameJ     string     `json:"name_j"`
	NoradJ    string     `json:"norad_j"`
	PositionI [3]float64 `json:"r_i_km"`
	PositionJ [3]float64 `json:"r_j_km"`
}

func run(ctx context.Context, opts options, out io.Writer, log logging.Logger) error {
	f, err := os.Open(opts.tlePath)
	if err != nil {
		return fmt.Errorf("open TLE file: %w", err)
	}
	elems, err := core.ParseTLEs(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse TLE file: %w", err)
	}

	pj, kept, err := core.SGP4Polyjectory(elems, opts.start, opts.horizon, opts.segment)
	if err != nil {
		return fmt.Errorf("build polyjectory: %w", err)
	}
	log.Info(ctx, "propagated element sets",
		logging.Int("parsed", len(elems)),
		logging.Int("accepted", len(kept)),
		logging.String("start", opts.start.Format(time.RFC3339)),
	)

	catalog := kb.NewCatalog(time.Minute)
	for _, i := range kept {
		e := elems[i]
		rec := kb.ObjectRecord{Name: e.Name, NoradID: e.NoradID(), Type: model.ObjectPrimary}
		switch {
		case opts.masked[rec.NoradID]:
			rec.Type = model.ObjectMasked
		case opts.secondary[rec.NoradID]:
			rec.Type = model.ObjectSecondary
		}
		if _, err := catalog.AddObject(rec); err != nil {
			return err
		}
	}

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	screened, err := core.New(ctx, pj, core.Config{
		ConjThresh:      opts.threshold,
		ConjDetInterval: opts.interval.Minutes(),
		OTypes:          catalog.OTypes(),
		Workers:         opts.workers,
	}, core.WithLogger(log), core.WithCollector(collector))
	if err != nil {
		return err
	}

	reports, err := catalog.Publish(screened, opts.start)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, r := range reports {
		line := reportLine{
			TCA:       r.TCA.UTC(),
			DCAKm:     r.DCA,
			RelSpeed:  r.RelSpeed / 60,
			NameI:     r.ObjectI.Name,
			NoradI:    r.ObjectI.NoradID,
			NameJ:     r.ObjectJ.Name,
			NoradJ:    r.ObjectJ.NoradID,
			PositionI: r.Conjunction.RI,
			PositionJ: r.Conjunction.RJ,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	log.Info(ctx, "screening complete", logging.Int("conjunctions", len(reports)))
	return nil
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
