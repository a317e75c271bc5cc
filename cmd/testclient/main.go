package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "ai-dialog-analysis-service/internal/api/grpc"
	"ai-dialog-analysis-service/internal/service/dialog"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	audioFile := flag.String("audio", "", "Path to WAV file (mono 16-bit PCM)")
	audioURL := flag.String("url", "", "URL of a WAV file for the server to fetch")
	flag.Parse()

	req := &grpcapi.AnalyzeRequest{URL: *audioURL}
	if *audioFile != "" {
		data, err := os.ReadFile(*audioFile)
		if err != nil {
			log.Fatalf("failed to read audio file: %v", err)
		}
		req = &grpcapi.AnalyzeRequest{Audio: data, Filename: *audioFile}
	}

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := grpcapi.NewClient(conn).Analyze(ctx, req)
	if err != nil {
		log.Fatalf("analyze failed: %v", err)
	}

	turns, err := (&dialog.Result{Dialog: resp.Dialog}).Turns()
	if err != nil {
		log.Fatalf("failed to decode dialog: %v", err)
	}

	log.Printf("Analysis %s: %d turns", resp.AnalysisID, len(turns))
	for i, turn := range turns {
		log.Printf("  #%d %-11s %6.2fs gender=%s raised=%v %q",
			i+1, turn.Source, turn.Duration, turn.Gender, turn.RaisedVoice, turn.Text)
	}
	log.Printf("Totals: receiver=%.2fs transmitter=%.2fs",
		resp.ResultDuration.Receiver, resp.ResultDuration.Transmitter)
}
