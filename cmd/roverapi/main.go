// Command roverapi runs the rovercore HTTP server: it connects to Postgres,
// runs migrations, wires the scraper registry and query engine, and serves
// the API surface defined in package api. A background scheduler loop keeps
// every active rover's photo feed topped up without an operator triggering
// the admin scraper endpoints by hand.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"

	"github.com/marsphotos/rovercore/api"
	"github.com/marsphotos/rovercore/datastore/postgres"
	"github.com/marsphotos/rovercore/internal/resilience"
	"github.com/marsphotos/rovercore/pkg/poolstats"
	"github.com/marsphotos/rovercore/query"
	"github.com/marsphotos/rovercore/scrape"
)

// Config uses goconfig for struct-tag-driven flag/env-var parsing.
type Config struct {
	HTTPListenAddr string `cfgDefault:"0.0.0.0:8080" cfg:"HTTP_LISTEN_ADDR"`
	MaxConnPool    int    `cfgDefault:"30" cfg:"MAX_CONN_POOL" cfgHelper:"the maximum size of the connection pool used for database connections"`
	ConnString     string `cfgDefault:"host=localhost port=5432 user=rovercore dbname=rovercore sslmode=disable" cfg:"CONNECTION_STRING" cfgHelper:"Connection string for the Postgres store"`
	LogLevel       string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`
	Migrations     bool   `cfgDefault:"true" cfg:"MIGRATIONS" cfgHelper:"Should the server run migrations on startup"`

	CuriosityBaseURL    string `cfgDefault:"https://mars.example.com/curiosity" cfg:"CURIOSITY_BASE_URL"`
	PerseveranceBaseURL string `cfgDefault:"https://mars.example.com/perseverance" cfg:"PERSEVERANCE_BASE_URL"`

	DisableScheduler bool          `cfgDefault:"false" cfg:"DISABLE_SCHEDULER" cfgHelper:"Should the background incremental-scrape scheduler run"`
	SchedulerPeriod  time.Duration `cfgDefault:"1h" cfg:"SCHEDULER_PERIOD" cfgHelper:"How often the scheduler checks each active rover for new sols"`
	SchedulerLagSols int           `cfgDefault:"5" cfg:"SCHEDULER_LAG_SOLS" cfgHelper:"How many sols behind the rover's own max(sol) the scheduler re-attempts, to catch late-arriving uploads"`
}

func main() {
	ctx := context.Background()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().
		Logger()

	conf := Config{}
	if err := goconfig.Parse(&conf); err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}
	log = log.Level(logLevel(conf))
	zlog.Set(&log)

	pool, err := postgres.Connect(ctx, conf.ConnString, "roverapi")
	if err != nil {
		log.Fatal().Msgf("failed to create db pool: %v", err)
	}
	defer pool.Close()

	if conf.Migrations {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal().Msgf("failed to run migrations: %v", err)
		}
	}

	prometheus.MustRegister(poolstats.NewCollector(pool, "roverapi"))

	store := postgres.NewStore(pool)
	registry, err := buildRegistry(store, conf)
	if err != nil {
		log.Fatal().Msgf("failed to build scraper registry: %v", err)
	}

	engine := query.New(store)
	handler := api.NewHandler(engine, registry, store)
	handler.Handle("GET /metrics", promhttp.Handler())

	if !conf.DisableScheduler {
		go runScheduler(ctx, registry, store, conf.SchedulerPeriod, conf.SchedulerLagSols)
	}

	srv := &http.Server{
		Addr:        conf.HTTPListenAddr,
		Handler:     handler,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	log.Info().Str("addr", conf.HTTPListenAddr).Msg("starting http server")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Msgf("http server exited: %v", err)
	}
}

func logLevel(conf Config) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}

// buildRegistry constructs every scraper rovercore ships and registers them
// under their canonical rover names. Opportunity and Spirit share the
// PDS-volume walker; their volume lists are the fixed, small sets NASA's PDS
// archive publishes for each mission's cameras and don't change at runtime,
// so they're compiled in rather than configured.
func buildRegistry(store scrape.Store, conf Config) (*scrape.Registry, error) {
	client := resilience.New(resilience.DefaultConfig())

	curiosity, err := scrape.NewCuriosityScraper(store, client, conf.CuriosityBaseURL)
	if err != nil {
		return nil, err
	}
	perseverance, err := scrape.NewPerseveranceScraper(store, client, conf.PerseveranceBaseURL)
	if err != nil {
		return nil, err
	}
	opportunity := scrape.NewPDSScraper("Opportunity", store, client, opportunityVolumes)
	spirit := scrape.NewPDSScraper("Spirit", store, client, spiritVolumes)

	registry := scrape.NewRegistry()
	for _, s := range []scrape.Scraper{curiosity, perseverance, opportunity, spirit} {
		if err := registry.Add(s); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// opportunityVolumes and spiritVolumes name the PDS archive's per-camera EDR
// index volumes for each rover. Both missions are complete, so these lists
// are closed sets, not subject to change. Each volume also lists the JPL
// mirror alongside the WUSTL primary; ScrapeVolume races them and ingests
// from whichever answers first.
var opportunityVolumes = []scrape.Volume{
	{
		Name: "mera_0001",
		URL:  "https://pds-geosciences.wustl.edu/mer/mera_0001/index/edrindex.tab",
		Mirrors: []string{
			"https://pds-geosciences.wustl.edu/mer/mera_0001/index/edrindex.tab",
			"https://pds-imaging.jpl.nasa.gov/mer/mera_0001/index/edrindex.tab",
		},
	},
	{
		Name: "mera_0002",
		URL:  "https://pds-geosciences.wustl.edu/mer/mera_0002/index/edrindex.tab",
		Mirrors: []string{
			"https://pds-geosciences.wustl.edu/mer/mera_0002/index/edrindex.tab",
			"https://pds-imaging.jpl.nasa.gov/mer/mera_0002/index/edrindex.tab",
		},
	},
}

var spiritVolumes = []scrape.Volume{
	{
		Name: "merb_0001",
		URL:  "https://pds-geosciences.wustl.edu/mer/merb_0001/index/edrindex.tab",
		Mirrors: []string{
			"https://pds-geosciences.wustl.edu/mer/merb_0001/index/edrindex.tab",
			"https://pds-imaging.jpl.nasa.gov/mer/merb_0001/index/edrindex.tab",
		},
	},
	{
		Name: "merb_0002",
		URL:  "https://pds-geosciences.wustl.edu/mer/merb_0002/index/edrindex.tab",
		Mirrors: []string{
			"https://pds-geosciences.wustl.edu/mer/merb_0002/index/edrindex.tab",
			"https://pds-imaging.jpl.nasa.gov/mer/merb_0002/index/edrindex.tab",
		},
	},
}

// runScheduler periodically bulk-scrapes every registered scraper, so the
// photo feed stays current without an operator hitting the admin endpoints
// by hand. Perseverance and the PDS-backed scrapers (Opportunity, Spirit)
// self-discover their own end point when passed (0, 0); Curiosity's feed has
// no "latest sol" endpoint (scrape/curiosity.go's BulkScrape rejects end ==
// 0 outright), so the scheduler derives its window from the rover's own
// stored max(sol) plus lagSols, re-attempting the last lagSols sols each
// pass to catch uploads that land after their nominal sol. A failed rover is
// logged and skipped, not fatal to the loop.
func runScheduler(ctx context.Context, registry *scrape.Registry, store scrape.Store, period time.Duration, lagSols int) {
	ctx = zlog.ContextWithValues(ctx, "component", "cmd/roverapi.runScheduler")
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range registry.All() {
				runSchedulerPass(ctx, s, store, lagSols)
			}
		}
	}
}

func runSchedulerPass(ctx context.Context, s scrape.Scraper, store scrape.Store, lagSols int) {
	start, end := 0, 0
	if _, ok := s.(*scrape.CuriosityScraper); ok {
		rover, err := store.GetRoverByName(ctx, s.RoverName())
		if err != nil {
			zlog.Warn(ctx).Str("rover", s.RoverName()).Err(err).Msg("scheduled scrape: lookup rover failed")
			return
		}
		maxSol, any, err := store.MaxSol(ctx, rover.ID)
		if err != nil {
			zlog.Warn(ctx).Str("rover", s.RoverName()).Err(err).Msg("scheduled scrape: lookup max sol failed")
			return
		}
		if !any {
			return
		}
		start = maxSol - lagSols + 1
		if start < 0 {
			start = 0
		}
		end = maxSol + lagSols
	}

	res, err := s.BulkScrape(ctx, start, end)
	if err != nil {
		zlog.Warn(ctx).Str("rover", s.RoverName()).Err(err).Msg("scheduled scrape failed")
		return
	}
	zlog.Info(ctx).Str("rover", s.RoverName()).
		Int("inserted", res.Inserted).Int("skipped", res.Skipped).
		Msg("scheduled scrape complete")
}
