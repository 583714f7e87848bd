package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Fetches a report from a running nad-api and prints it.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "nad-api base URL")
	mode := flag.String("mode", "text", "Output: 'text' for the rendered report, 'json' for the report document, 'latest' for the last alerter report")
	window := flag.String("window", "", "Window ending now, e.g. 30m")
	start := flag.String("start", "", "Window start in RFC3339")
	end := flag.String("end", "", "Window end in RFC3339")
	flag.Parse()

	params := url.Values{}
	if *window != "" {
		params.Set("window", *window)
	}
	if *start != "" || *end != "" {
		params.Set("start", *start)
		params.Set("end", *end)
	}

	var path string
	switch *mode {
	case "text":
		path = "/api/v1/report/text"
	case "json":
		path = "/api/v1/report"
	case "latest":
		path = "/api/v1/report/latest"
	default:
		log.Fatalf("Invalid mode: %s. Use 'text', 'json' or 'latest'.", *mode)
	}

	target := *addr + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	log.Infof("Requesting %s", target)

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Get(target)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	if *mode == "text" {
		fmt.Print(string(respBody))
		return
	}
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Fatalf("Error formatting JSON response: %v", err)
	}
	prettyJSON.WriteTo(os.Stdout)
	fmt.Println()
}
