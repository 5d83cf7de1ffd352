package config

import "os"

// Runtime holds process-level settings that come from the environment rather
// than the engine's YAML policy file: log level, collaborator endpoints,
// signing material.
type Runtime struct {
	LogLevel          string
	RedisAddr         string
	AttestationKey    string
	AttestationIssuer string
	OTLPEndpoint      string
	TracingEnabled    bool
}

// LoadRuntime loads runtime configuration from environment variables.
func LoadRuntime() *Runtime {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	otlp := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Runtime{
		LogLevel:          logLevel,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		AttestationKey:    os.Getenv("ATTESTATION_KEY"),
		AttestationIssuer: os.Getenv("ATTESTATION_ISSUER"),
		OTLPEndpoint:      otlp,
		TracingEnabled:    os.Getenv("TRACING_ENABLED") == "true",
	}
}
