package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

func main() {
	audioFile := flag.String("audio", "../../testdata/sample-8khz.wav", "Path to WAV file (mono 16-bit PCM)")
	audioURL := flag.String("url", "", "URL of a WAV file for the server to fetch instead of uploading")
	serverURL := flag.String("server", "http://localhost:8080/asr", "Analysis endpoint")
	timeout := flag.Duration("timeout", 2*time.Minute, "Request timeout")
	flag.Parse()

	var (
		body        io.Reader
		contentType string
	)
	if *audioURL != "" {
		body = strings.NewReader(*audioURL)
		contentType = "text/plain"
	} else {
		data, err := os.ReadFile(*audioFile)
		if err != nil {
			log.Fatalf("Failed to read audio file: %v", err)
		}
		describe(data)
		body, contentType, err = upload(*audioFile, data)
		if err != nil {
			log.Fatalf("Failed to build upload: %v", err)
		}
	}

	client := &http.Client{Timeout: *timeout}
	start := time.Now()
	resp, err := client.Post(*serverURL, contentType, body)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	log.Printf("HTTP %d in %v analysisId=%s", resp.StatusCode, time.Since(start).Round(time.Millisecond), resp.Header.Get("X-Analysis-ID"))

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		os.Stdout.Write(raw)
		return
	}
	pretty.WriteTo(os.Stdout)
	os.Stdout.WriteString("\n")
}

// describe logs the WAV format and warns about input the server will reject.
func describe(data []byte) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		log.Printf("Warning: not a valid WAV file, the server will reject it")
		return
	}
	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		dec.WavAudioFormat, dec.NumChans, dec.SampleRate, dec.BitDepth)

	if dec.WavAudioFormat != 1 || dec.NumChans != 1 || dec.BitDepth != 16 {
		log.Printf("Warning: only mono 16-bit PCM is supported")
	}
}

func upload(path string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
