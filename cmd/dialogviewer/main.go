// Dialog Viewer - live display of analysis events.
// Consumes the partial transcript and completed dialog topics from Kafka and
// pushes them to browsers over WebSocket.
package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

//go:embed static/*
var staticFiles embed.FS

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour)); err != nil {
		log.Printf("Kafka seek error on %s: %v", topic, err)
	}

	log.Printf("Consuming from Kafka topic: %s partition 0 (last hour)", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		event, err := decodeEvent(msg.Value)
		if err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		log.Printf("Received %s for analysis %s", event.EventType, event.AnalysisID)
		hub.broadcast <- event
	}
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "interaction.transcript.partial", "Partial transcript topic")
	topicDialog := flag.String("topic-dialog", "interaction.dialog.completed", "Completed dialog topic")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx.Done())

	go consumeKafka(ctx, hub, *brokers, *topicPartial)
	go consumeKafka(ctx, hub, *brokers, *topicDialog)

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", wsHandler(hub))

	log.Printf("Dialog Viewer starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s", *topicPartial, *topicDialog)

	if err := http.ListenAndServe(":"+*port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
