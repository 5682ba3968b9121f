package logging

import (
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects the resolved account, resources and feature flags,
// then emits a single structured zerolog event summarising how the run was
// configured. Only non-sensitive values belong here.
type StartupLogger struct {
	name    string
	version string

	account   map[string]string
	resources map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger creates a StartupLogger for the given command name.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		account:   make(map[string]string),
		resources: make(map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Account registers an identifying Video Indexer account attribute
// (location, account name, resource group).
func (s *StartupLogger) Account(label, value string) *StartupLogger {
	s.account[label] = value
	return s
}

// Resource registers an external resource used by this run
// (staging bucket, ledger table, event bus).
func (s *StartupLogger) Resource(label, name string) *StartupLogger {
	if name != "" {
		s.resources[label] = name
	}
	return s
}

// Feature registers a boolean feature flag (e.g. "ledger", "events").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// Log emits a single structured DEBUG log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Debug().
		Str("command", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH)

	if s.version != "" {
		evt = evt.Str("version", s.version)
	}
	if len(s.account) > 0 {
		evt = evt.Dict("account", dictFromMap(s.account))
	}
	if len(s.resources) > 0 {
		evt = evt.Dict("resources", dictFromMap(s.resources))
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(s.features) {
			d = d.Bool(k, s.features[k])
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	evt.Msg("Startup configuration resolved")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
