package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRunLogger_JSON(t *testing.T) {
	t.Setenv(EnvFormat, "json")
	t.Setenv(EnvLevel, "info")
	var buf bytes.Buffer
	saved := log.Logger
	defer func() { log.Logger = saved }()
	InitWith(&buf)

	NewRunLogger("catalog-publisher").
		File("publishLog", "data/posted_log.csv").
		Backend("caption", "ollama").
		SSMParam("instagramToken", "/catalog/instagram-token").
		Feature("highRes", true).
		Log()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if doc["message"] != "Configuration resolved" {
		t.Errorf("unexpected message %v", doc["message"])
	}
	resources, _ := doc["resources"].(map[string]any)
	files, _ := resources["files"].(map[string]any)
	if files["publishLog"] != "data/posted_log.csv" {
		t.Errorf("file not logged: %v", doc)
	}
	features, _ := doc["features"].(map[string]any)
	if features["highRes"] != true {
		t.Errorf("feature not logged: %v", doc)
	}
}
