package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	analytics "github.com/metarouterio/analytics-go"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	writeKey := os.Getenv("ANALYTICS_WRITE_KEY")
	if writeKey == "" {
		writeKey = "example-write-key"
	}
	host := os.Getenv("ANALYTICS_INGESTION_HOST")
	if host == "" {
		host = "https://ingestion.example.com"
	}

	client, err := analytics.New(writeKey, host,
		analytics.WithLogger(logger),
		analytics.WithFlushInterval(5*time.Second),
		analytics.WithContextProvider(analytics.NewStaticContextProvider(analytics.EventContext{
			App:    analytics.AppInfo{Name: "example", Version: "0.1.0"},
			Locale: "en-US",
		})),
	)
	if err != nil {
		logger.Fatal("Failed to create analytics client", zap.Error(err))
	}

	// Calls made before initialization completes are buffered and replayed.
	client.Track("Example Started", analytics.Properties{"pid": os.Getpid()})

	if err := client.InitializeAndWait(); err != nil {
		logger.Fatal("Failed to initialize analytics client", zap.Error(err))
	}

	client.Identify("user-1234", analytics.Traits{"plan": "free"})
	client.Screen("Home", nil)
	client.Track("Button Clicked", analytics.Properties{
		"button": "signup",
		"nested": map[string]any{"a": 1, "b": []any{"x", "y"}},
	})
	client.Flush()

	logger.Info("Events queued", zap.Any("debug", client.GetDebugInfo()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-time.After(10 * time.Second):
	}

	// Final flush before exit, the way a platform adapter would on background.
	client.HandleBackground()
	time.Sleep(time.Second)
}
