// Package main runs a demo WebSocket client for trailer event streams.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	trailerID := "tr-demo"

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "operator")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to the trailer's stream
	pl, _ := json.Marshal(map[string]any{"trailerId": trailerID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger an event via ingest
	time.Sleep(500 * time.Millisecond)
	body := fmt.Sprintf(`{"data":[{"id":"demo-1","trailer":{"id":%q},"kind":"alarm","triggered_at":%q,"route_log":{"latitude":52.23,"longitude":21.01,"location_name":"Warszawa"}}]}`,
		trailerID, time.Now().UTC().Format(time.RFC3339))
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/trailers/%s/events", base, trailerID), bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "operator")
	if _, err := http.DefaultClient.Do(req); err != nil {
		log.Fatal(err)
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
