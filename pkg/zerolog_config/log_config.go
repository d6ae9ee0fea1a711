package zerolog_config

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var appPrefix string
var setAppPrefixOnce *sync.Once = &sync.Once{}
var startupLoggerOnce *sync.Once = &sync.Once{}

// ElasticsearchWriter sends logs directly to an Elasticsearch index
type ElasticsearchWriter struct {
	URL    string
	Client *http.Client
}

func (ew ElasticsearchWriter) Write(p []byte) (n int, err error) {
	client := ew.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	resp, err := client.Post(
		ew.URL+"/_doc",
		"application/json",
		bytes.NewBuffer(p),
	)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}

	return len(p), nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func newLogger(console io.Writer, elasticsearchURL, index string) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: console}

	if elasticsearchURL == "" {
		return zerolog.New(consoleWriter).With().Str("app", appPrefix).
			Timestamp().Logger()
	}

	// ECS format for Elasticsearch
	ecsLogger := ecszerolog.New(&ElasticsearchWriter{
		URL: strings.TrimSuffix(elasticsearchURL, "/") + "/" + index,
	})

	// MultiLevelWriter: ECS to Elasticsearch + pretty to console
	multi := zerolog.MultiLevelWriter(
		ecsLogger,
		consoleWriter,
	)

	return zerolog.New(multi).With().Str("app", appPrefix).
		Timestamp().Logger()
}

// SetAppPrefix sets the app field of every log line
func SetAppPrefix(prefix string) {
	setAppPrefixOnce.Do(func() {
		appPrefix = prefix
	})
}

// StartupWithEnv sets up the global logger once. Logs go to the console and,
// when elasticsearchURL is set, to the given index.
// Run SetAppPrefix before StartupWithEnv.
func StartupWithEnv(elasticsearchURL, index, level string) error {
	if index == "" {
		return fmt.Errorf("index is required")
	}
	startupLoggerOnce.Do(func() {
		zerolog.SetGlobalLevel(ParseLevel(level))
		log.Logger = newLogger(os.Stdout, elasticsearchURL, index)
	})
	return nil
}
