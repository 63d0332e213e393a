// Package main runs a demo WebSocket client for plan events.
package main

import (
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
	challenge := os.Getenv("CHALLENGE")
	if challenge == "" {
		challenge = "city-loop"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Warm the plan so a recompute event has something to announce
	resp, err := http.Get(base + "/v1/challenges/" + challenge)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("warmed %s: %s", challenge, resp.Status)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	payload, _ := json.Marshal(map[string]string{"challenge": challenge})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: payload}); err != nil {
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

	select {
	case <-time.After(30 * time.Second):
	case <-done:
	}
}
