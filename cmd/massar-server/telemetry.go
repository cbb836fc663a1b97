package main

import (
	"context"
	"log/slog"

	"massar-backend/internal/components/serviceutil"
	"massar-backend/internal/components/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) telemetry.Telemetry {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	t, err := telemetry.SetupFromEnv(ctx, "massar-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)

	return t
}
