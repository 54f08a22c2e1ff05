package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"golang.org/x/sync/errgroup"

	"github.com/lox/ecocast/internal/api"
	"github.com/lox/ecocast/internal/assets"
	"github.com/lox/ecocast/internal/dataset"
	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/logging"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/narrative"
	"github.com/lox/ecocast/internal/publish"
	"github.com/lox/ecocast/internal/store"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	LogFormat string `name:"log-format" enum:"text,json" default:"text" env:"LOG_FORMAT" help:"Log output format (text, json)."`
	LogLevel  string `name:"log-level" default:"info" env:"LOG_LEVEL" help:"Log level (debug, info, warn, error)."`
	DB        string `name:"db" default:"data/ecocast.db" env:"ECOCAST_DB" help:"Path to SQLite database."`

	OWMKey     string `name:"owm-key" env:"OWM_API_KEY" help:"OpenWeatherMap API key for state lookups."`
	OWMBaseURL string `name:"owm-base-url" default:"${owm_base_url}" env:"OWM_BASE_URL" help:"OpenWeatherMap base URL."`
	OWMRetries uint64 `name:"owm-retries" default:"0" env:"OWM_RETRIES" help:"Retries for 429 and 5xx responses (0 disables)."`

	OpenAIKey   string `name:"openai-key" env:"OPENAI_API_KEY" help:"Enables the written forecast outlook."`
	OpenAIModel string `name:"openai-model" env:"OPENAI_MODEL" help:"Model for the forecast outlook."`

	MQTTBroker   string `name:"mqtt-broker" env:"MQTT_BROKER" help:"Publish forecasts and lookups to this broker, e.g. tcp://localhost:1883."`
	MQTTClientID string `name:"mqtt-client-id" default:"ecocast" env:"MQTT_CLIENT_ID" help:"MQTT client ID."`
	MQTTPrefix   string `name:"mqtt-topic-prefix" default:"ecocast" env:"MQTT_TOPIC_PREFIX" help:"MQTT topic prefix."`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Run the weather dashboard (default)."`
	Generate GenerateCmd `cmd:"" help:"Generate a forecast from an hourly history CSV and write it as JSON."`
	Lookup   LookupCmd   `cmd:"" help:"Look up current weather for a state."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ecocast"),
		kong.Description("EcoCast weather dashboard."),
		kong.UsageOnError(),
		kong.Vars{"owm_base_url": ingest.DefaultOWMBaseURL},
	)

	if err := cli.setupLogging(os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := kctx.Run(&cli.Globals); err != nil {
		slog.Error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

func (g *Globals) setupLogging(w io.Writer) error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	logger, err := logging.New(w, g.LogFormat, level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func (g *Globals) openStore() (*store.Store, func(), error) {
	db, err := store.Open(g.DB)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func (g *Globals) regionProvider() ingest.Provider {
	if g.OWMKey == "" {
		slog.Warn("OWM_API_KEY not set, state lookups will fail")
		return nil
	}
	owm := ingest.NewOpenWeatherMap(g.OWMKey, g.OWMBaseURL)
	owm.Retries = g.OWMRetries
	return owm
}

type ServeCmd struct {
	Port          string        `default:"8080" env:"PORT" help:"HTTP server port."`
	Dataset       string        `env:"ECOCAST_DATASET" help:"Hourly history CSV (path, http(s):// or ftp:// URL). Enables scheduled forecast generation."`
	RegenInterval time.Duration `name:"regen-interval" default:"24h" help:"How often to regenerate the forecast."`
	ForecastAsset string        `name:"forecast" env:"ECOCAST_FORECAST" help:"Forecast JSON (path or URL) shown when no run has been generated."`
	RegionsAsset  string        `name:"regions" env:"ECOCAST_REGIONS" help:"GeoJSON state outline (path or URL). Defaults to the bundled map."`
	MockLatency   time.Duration `name:"mock-latency" default:"1s" help:"Simulated latency of world map lookups."`
}

// Validate is called by kong after flags are parsed.
func (c *ServeCmd) Validate() error {
	if c.RegenInterval <= 0 {
		return fmt.Errorf("--regen-interval must be positive, got %s", c.RegenInterval)
	}
	if c.MockLatency < 0 {
		return fmt.Errorf("--mock-latency must not be negative, got %s", c.MockLatency)
	}
	return nil
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()
	slog.Info("database ready", "path", g.DB)

	loader := assets.NewLoader()
	lookups := ingest.NewLookups(st, g.regionProvider(), ingest.NewMock(c.MockLatency, uint64(time.Now().UnixNano())))
	writer := narrative.New(g.OpenAIKey, g.OpenAIModel, st)

	var pub *publish.Publisher
	if g.MQTTBroker != "" {
		pub = publish.New(publish.Config{Broker: g.MQTTBroker, ClientID: g.MQTTClientID, TopicPrefix: g.MQTTPrefix})
		defer pub.Disconnect()
		lookups.OnResult(pub.LookupHook())
	}

	srv, err := api.NewServer(ctx, st, api.Config{
		Port:          c.Port,
		ForecastAsset: c.ForecastAsset,
		RegionsAsset:  c.RegionsAsset,
		Loader:        loader,
		Lookups:       lookups,
		Narrative:     writer,
	})
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Run(ctx)
	})

	if pub != nil {
		eg.Go(func() error {
			if err := pub.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("mqtt unavailable, publishing disabled until it connects", "broker", g.MQTTBroker, "error", err)
			}
			return nil
		})
	}

	if c.Dataset != "" {
		sched := ingest.NewScheduler(st, loader, c.Dataset, c.RegenInterval)
		if writer != nil {
			sched.OnRun(func(ctx context.Context, run *models.ForecastRun) {
				if _, err := writer.ForRun(ctx, run); err != nil {
					slog.Warn("failed to write outlook", "run", run.ID, "error", err)
				}
			})
		}
		if pub != nil {
			sched.OnRun(pub.ForecastHook())
		}
		eg.Go(func() error {
			sched.Run(ctx)
			return nil
		})
	} else {
		slog.Info("no dataset configured, forecast generation disabled")
	}

	return eg.Wait()
}

type GenerateCmd struct {
	CSV  string `name:"csv" required:"" help:"Hourly history CSV (path, http(s):// or ftp:// URL)."`
	Out  string `name:"out" default:"-" help:"Output file, - for stdout."`
	Days int    `default:"15" help:"Days to forecast."`
	Seed uint64 `help:"Random seed. 0 uses the current time."`
	Save bool   `help:"Also store the run in the database."`
}

func (c *GenerateCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now().UTC()
	seed := c.Seed
	if seed == 0 {
		seed = uint64(start.UnixNano())
	}

	days, records, err := ingest.LoadAndGenerate(ctx, assets.NewLoader(), c.CSV, forecast.GenerateOptions{
		Days:  c.Days,
		Start: start,
		Seed:  seed,
	})
	if err != nil {
		return err
	}
	slog.Info("forecast generated", "days", len(days), "records", records, "seed", seed)

	if c.Save {
		st, closeDB, err := g.openStore()
		if err != nil {
			return err
		}
		defer closeDB()
		run := &models.ForecastRun{GeneratedAt: start, Source: "generator", Days: days}
		if err := st.SaveForecastRun(run); err != nil {
			return fmt.Errorf("save forecast run: %w", err)
		}
		slog.Info("forecast run stored", "run", run.ID)
	}

	if c.Out == "-" {
		return dataset.WriteForecast(os.Stdout, days)
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := dataset.WriteForecast(f, days); err != nil {
		f.Close()
		return fmt.Errorf("write forecast: %w", err)
	}
	return f.Close()
}

type LookupCmd struct {
	Region string `arg:"" help:"State name, e.g. Karnataka."`
}

func (c *LookupCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeDB, err := g.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	res := ingest.NewLookups(st, g.regionProvider(), nil).Region(ctx, c.Region)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}
