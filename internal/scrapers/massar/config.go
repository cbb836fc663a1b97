package massar

import (
	"time"

	"massar-backend/internal/components/telemetry"
)

// Config is the json5 configuration of a Client, every field is optional.
type Config struct {
	BaseUrl           string  `json:"base_url"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	// DumpDirectory receives every http exchange with the portal, passwords
	// are redacted.
	DumpDirectory string `json:"dump_directory"`
}

// Options converts the configuration into client Options.
func (c Config) Options(tel telemetry.API) (Options, error) {
	opts := Options{
		BaseUrl:           c.BaseUrl,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		Telemetry:         tel,
	}
	if c.DumpDirectory != "" {
		output, err := telemetry.NewFilesystemOutput(c.DumpDirectory)
		if err != nil {
			return Options{}, err
		}
		opts.Output = output
	}
	return opts, nil
}
