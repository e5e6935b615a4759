package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fableworks/continuity/internal/gateway"
)

const baseURL = "http://localhost:8080"

// Smoke test against a locally running server: deliver a signed validation
// event, then poll /status until the run leaves the board.
func main() {
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		fmt.Println("WEBHOOK_SECRET must be set (same value the server uses)")
		os.Exit(1)
	}
	target := os.Getenv("TARGET")
	if target == "" {
		target = "main"
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	eventID := fmt.Sprintf("smoke-%d", time.Now().Unix())
	event := gateway.Event{
		ID:      eventID,
		Target:  target,
		Sender:  "smoke-test",
		Comment: "/validate new-only",
	}

	fmt.Println("1. Delivering validation event...")
	if !sendWebhook(secret, event, http.StatusAccepted) {
		fmt.Println("FAILED: Deliver event")
		os.Exit(1)
	}
	fmt.Println("PASSED: Deliver event")

	fmt.Println("2. Redelivering the same event (must be dropped)...")
	if !sendWebhook(secret, event, http.StatusOK) {
		fmt.Println("FAILED: Duplicate delivery")
		os.Exit(1)
	}
	fmt.Println("PASSED: Duplicate delivery")

	fmt.Println("3. Polling status...")
	for i := 0; i < 60; i++ {
		resp, err := http.Get(baseURL + "/status")
		if err != nil {
			fmt.Printf("Error querying status: %v\n", err)
			os.Exit(1)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		fmt.Printf("Status: %s\n", string(body))
		if !bytes.Contains(body, []byte(`"running"`)) && !bytes.Contains(body, []byte(`"pending"`)) {
			fmt.Println("PASSED: Run reached a terminal state")
			return
		}
		time.Sleep(5 * time.Second)
	}
	fmt.Println("FAILED: Run did not finish in time")
	os.Exit(1)
}

func sendWebhook(secret string, event gateway.Event, wantStatus int) bool {
	jsonBytes, _ := json.Marshal(event)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhook", bytes.NewBuffer(jsonBytes))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.SignatureHeader, gateway.Sign([]byte(secret), jsonBytes))

	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return true
}
