package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger collects the resolved configuration of a process (files,
// backends, AWS resources and feature flags) and emits it as one
// structured event, so a run can be understood from its log alone.
// Secrets are never registered.
type RunLogger struct {
	name         string
	version      string
	initDuration time.Duration

	files        map[string]string
	backends     map[string]string
	s3Objects    map[string]string
	dynamoTables map[string]string
	ssmParams    map[string]string
	features     map[string]bool
}

// NewRunLogger creates a RunLogger for the named binary
// (e.g. "catalog-publisher", "scheduler-lambda").
func NewRunLogger(name string) *RunLogger {
	return &RunLogger{
		name:         name,
		files:        make(map[string]string),
		backends:     make(map[string]string),
		s3Objects:    make(map[string]string),
		dynamoTables: make(map[string]string),
		ssmParams:    make(map[string]string),
		features:     make(map[string]bool),
	}
}

// Version sets the build version baked into the binary.
func (s *RunLogger) Version(v string) *RunLogger {
	s.version = v
	return s
}

// File registers a local file or feed URL used by the run.
func (s *RunLogger) File(label, path string) *RunLogger {
	s.files[label] = path
	return s
}

// Backend registers the implementation chosen for a concern.
func (s *RunLogger) Backend(concern, name string) *RunLogger {
	s.backends[concern] = name
	return s
}

// S3Object registers an S3 object mirrored by the run.
func (s *RunLogger) S3Object(label, uri string) *RunLogger {
	s.s3Objects[label] = uri
	return s
}

// DynamoTable registers a DynamoDB table used by the run.
func (s *RunLogger) DynamoTable(label, name string) *RunLogger {
	s.dynamoTables[label] = name
	return s
}

// SSMParam registers an SSM parameter path. Only the path is logged.
func (s *RunLogger) SSMParam(label, path string) *RunLogger {
	s.ssmParams[label] = path
	return s
}

// Feature registers a boolean feature flag (e.g. "highRes", "events").
func (s *RunLogger) Feature(name string, enabled bool) *RunLogger {
	s.features[name] = enabled
	return s
}

// InitDuration records how long startup took.
func (s *RunLogger) InitDuration(d time.Duration) *RunLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured INFO event with all collected information.
func (s *RunLogger) Log() {
	evt := log.Info()

	process := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", zerolog.GlobalLevel().String())
	if s.version != "" {
		process = process.Str("version", s.version)
	}
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		process = process.Str("functionName", fn).Str("region", os.Getenv("AWS_REGION"))
	}
	evt = evt.Dict("process", process)

	resources := zerolog.Dict()
	hasResources := false
	for label, m := range map[string]map[string]string{
		"files":        s.files,
		"s3Objects":    s.s3Objects,
		"dynamoTables": s.dynamoTables,
		"ssmParams":    s.ssmParams,
	} {
		if len(m) > 0 {
			resources = resources.Dict(label, dictFromMap(m))
			hasResources = true
		}
	}
	if hasResources {
		evt = evt.Dict("resources", resources)
	}

	if len(s.backends) > 0 {
		evt = evt.Dict("backends", dictFromMap(s.backends))
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Configuration resolved")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
