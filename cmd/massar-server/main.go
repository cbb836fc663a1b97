package main

import (
	"context"
	"flag"
	"net/http"

	"massar-backend/internal/components/chrono"
	"massar-backend/internal/components/configutil"
	"massar-backend/internal/components/db"
	"massar-backend/internal/components/serviceutil"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/scrapers/massar"
	"massar-backend/internal/service"
	"massar-backend/internal/snapshot"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Port        int           `json:"port"`
	AccessToken string        `json:"access_token"`
	Massar      massar.Config `json:"massar"`
	// Database is optional, when it is set every fetched report is recorded.
	Database db.Config `json:"database"`
}

var defaultConfig = Config{
	Port: 8000,
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	configPath := flag.String("config", "config.json5", "The path to the configuration file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	t := InitTelemetry(ctx, *verbose)
	defer t.Shutdown(context.Background())

	cfg, err := configutil.ReadConfigWithDefaults(*configPath, defaultConfig)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	tel := telemetry.SlogAPI{}
	opts, err := cfg.Massar.Options(tel)
	if err != nil {
		serviceutil.Fatal("massar options", err)
	}
	client, err := massar.NewClient(opts)
	if err != nil {
		serviceutil.Fatal("create massar client", err)
	}

	options := []service.Option{service.WithCustomTelemetryAPI(tel)}
	if cfg.Database.Enabled() {
		database, err := db.Open(ctx, cfg.Database, snapshot.Schema)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}
		defer database.Close()

		store := snapshot.NewStore(database, db.NewMakeTx(database), chrono.NewStandardTime(), tel)
		options = append(options, service.WithSnapshots(store))
	}

	grades := service.NewGradesService(client, options...)

	mux := http.NewServeMux()
	mux.Handle("/api/", serviceutil.RequireAccessToken(cfg.AccessToken, grades.Handler()))
	handler := otelhttp.NewHandler(mux, "massar-server")

	err = serviceutil.StartHttpServer(ctx, cfg.Port, handler)
	if err != nil {
		serviceutil.Fatal("http server", err)
	}
}
