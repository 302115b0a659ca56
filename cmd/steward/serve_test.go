package main

import (
	"testing"

	"github.com/stewardlabs/meeting-steward/internal/config"
)

func serveConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Ollama:  config.OllamaConfig{Host: "http://localhost:11434", Model: "llama3.2"},
		Speech:  config.SpeechConfig{BaseURL: "http://localhost:8081", Model: "base"},
		Storage: config.StorageConfig{Driver: "sqlite", DSN: "data/steward.db"},
	}
}

func TestRestartRequired(t *testing.T) {
	base := serveConfig()

	unchanged := serveConfig()
	if restartRequired(base, unchanged) {
		t.Error("identical configs should not require a restart")
	}

	modelOnly := serveConfig()
	modelOnly.Ollama.Model = "mistral:7b"
	if restartRequired(base, modelOnly) {
		t.Error("a model swap alone should not require a restart")
	}

	portChange := serveConfig()
	portChange.Server.Port = 9090
	if !restartRequired(base, portChange) {
		t.Error("a server port change should require a restart")
	}

	both := serveConfig()
	both.Ollama.Model = "mistral:7b"
	both.Storage.DSN = "data/other.db"
	if !restartRequired(base, both) {
		t.Error("a storage change should require a restart even alongside a model swap")
	}
}
