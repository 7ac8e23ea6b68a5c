package config

import (
	"reflect"
)

// Diff describes what changed between two configs. Only the sections that
// can be applied to a running server are tracked individually; everything
// else is reported through RestartRequired.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is set when the retry/request policy changed. New runs
	// pick it up once the controller is rebuilt.
	PipelineChanged bool

	// ProvidersChanged is set when the primary provider, the fallbacks or the
	// breaker settings changed. The completion client must be rebuilt.
	ProvidersChanged bool

	// RestartRequired lists config sections that changed but are only read at
	// startup (listen address, TLS, sinks).
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d Diff) Changed() bool {
	return d.LogLevelChanged || d.PipelineChanged || d.ProvidersChanged || len(d.RestartRequired) > 0
}

// Compare returns what changed from old to new.
func Compare(old, new *Config) Diff {
	var d Diff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.PipelineChanged = !reflect.DeepEqual(old.Pipeline, new.Pipeline)
	d.ProvidersChanged = !reflect.DeepEqual(old.Providers, new.Providers)

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !reflect.DeepEqual(old.Sinks, new.Sinks) {
		d.RestartRequired = append(d.RestartRequired, "sinks")
	}
	return d
}
