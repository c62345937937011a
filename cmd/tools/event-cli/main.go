package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/voxelstream/internal/eventbus"
	"github.com/annel0/voxelstream/internal/render"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05.000"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server URL")
		streamName = flag.String("stream", "VOXEL", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Source filter (comma-separated)")
		duration   = flag.Duration("for", 10*time.Second, "Stats collection window")
		limit      = flag.Int("limit", 0, "Stop tail after N events (0 = unlimited)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *streamName, time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to event bus: %v", err)
	}
	defer bus.Close()

	codec, err := render.NewCodec()
	if err != nil {
		log.Fatalf("❌ Codec: %v", err)
	}
	defer codec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filter := eventbus.Filter{
		Types:   parseStringList(*eventTypes),
		Sources: parseStringList(*sources),
	}

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, codec, filter, *limit); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}
	case "stats":
		if err := showStats(ctx, bus, codec, filter, *duration); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
}

// tailEvents выводит события мешей в реальном времени
func tailEvents(ctx context.Context, bus eventbus.EventBus, codec *render.Codec, filter eventbus.Filter, limit int) error {
	fmt.Printf("🎬 Tailing mesh events (limit: %d)\n", limit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		printEvent(ev, codec)
		count++
		if limit > 0 && count >= limit {
			cancel()
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	fmt.Printf("\n📊 Total events: %d\n", count)
	return nil
}

type typeStats struct {
	count     int
	bytes     int
	triangles int
}

// showStats собирает события в течение окна и печатает сводку по типам
func showStats(ctx context.Context, bus eventbus.EventBus, codec *render.Codec, filter eventbus.Filter, window time.Duration) error {
	fmt.Printf("📊 Collecting mesh events for %s\n", window)

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var mu sync.Mutex
	stats := make(map[string]*typeStats)
	chunks := make(map[string]struct{})
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		s, ok := stats[ev.EventType]
		if !ok {
			s = &typeStats{}
			stats[ev.EventType] = s
		}
		s.count++
		s.bytes += len(ev.Payload)
		if ev.EventType == eventbus.EventMeshPublished {
			if m, err := codec.DecodeMesh(ev.Payload); err == nil {
				s.triangles += m.Triangles()
			}
		}
		chunks[ev.Metadata["chunk"]] = struct{}{}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	fmt.Printf("%-18s %8s %12s %12s\n", "EVENT TYPE", "COUNT", "BYTES", "TRIANGLES")
	for eventType, s := range stats {
		fmt.Printf("%-18s %8d %12d %12d\n", eventType, s.count, s.bytes, s.triangles)
	}
	fmt.Printf("\n🧊 Distinct chunks: %d\n", len(chunks))
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope, codec *render.Codec) {
	line := fmt.Sprintf("%s %-15s chunk=%-14s src=%s",
		ev.Timestamp.Local().Format(timeFormat), ev.EventType, ev.Metadata["chunk"], ev.Source)

	if ev.EventType == eventbus.EventMeshPublished {
		m, err := codec.DecodeMesh(ev.Payload)
		if err != nil {
			line += fmt.Sprintf(" ⚠️  %v", err)
		} else {
			line += fmt.Sprintf(" tris=%d verts=%d zstd=%dB", m.Triangles(), len(m.Positions), len(ev.Payload))
		}
	}
	fmt.Println(line)
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
