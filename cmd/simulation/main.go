// Command simulation is a terminal stand-in for the chat widget: it issues a
// visitor token, follows the event stream and sends each line typed on stdin.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/fatih/color"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type visitor struct {
	VisitorID string `json:"visitor_id"`
	Token     string `json:"token"`
}

type turn struct {
	Role       string `json:"role"`
	Text       string `json:"text"`
	Annotation *struct {
		Kind string `json:"kind"`
	} `json:"annotation,omitempty"`
}

type frame struct {
	Type string `json:"type"`
	Data struct {
		Turn         *turn  `json:"turn"`
		Typing       bool   `json:"typing"`
		Availability string `json:"availability"`
	} `json:"data"`
}

type session struct {
	Turns        []turn   `json:"turns"`
	Delivering   bool     `json:"delivering"`
	Availability string   `json:"availability"`
	Suggestions  []string `json:"suggestions"`
	Contact      struct {
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"contact"`
}

type client struct {
	baseURL string
	token   string
	contact string
	http    *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000/api/concierge/v1", "concierge API base URL")
	token := flag.String("token", "", "reuse an existing visitor token")
	flag.Parse()

	c := &client{baseURL: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	color.Cyan("=== Entrust Concierge Simulation Client ===")

	var v visitor
	if err := c.do(http.MethodPost, "/visitor", map[string]string{"token": *token}, &v); err != nil {
		log.Fatalf("Failed to issue visitor: %v", err)
	}
	c.token = v.Token
	fmt.Printf("Visitor: %s\n", v.VisitorID)

	var s session
	if err := c.do(http.MethodGet, "/session", nil, &s); err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}
	c.contact = fmt.Sprintf("%s · %s", s.Contact.Phone, s.Contact.Email)
	fmt.Printf("Status: %s\n", s.Availability)
	for _, t := range s.Turns {
		printTurn(&t)
	}
	if len(s.Suggestions) > 0 {
		color.Yellow("Try: %s", strings.Join(s.Suggestions, " | "))
	}

	go c.follow()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := scanner.Text()
		switch strings.TrimSpace(text) {
		case "/quit":
			return
		case "/clear":
			if err := c.do(http.MethodDelete, "/session", nil, nil); err != nil {
				color.Red("Clear failed: %v", err)
			}
			continue
		}

		if err := c.do(http.MethodPost, "/messages", map[string]string{"text": text}, nil); err != nil {
			color.Red("Send failed: %v", err)
			continue
		}
		c.waitIdle()
	}
}

// follow prints websocket frames as they arrive.
func (c *client) follow() {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		color.Red("Bad URL: %v", err)
		return
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		color.Red("Event stream unavailable: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			color.Red("Event stream closed: %v", err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Type {
		case "typing":
			if f.Data.Typing {
				color.HiBlack("  concierge is typing...")
			}
		case "turn_appended":
			if f.Data.Turn != nil && f.Data.Turn.Role == "assistant" {
				printTurn(f.Data.Turn)
			}
		case "turn_annotated":
			color.Green("  [contact card] %s", c.contact)
		case "availability_changed":
			color.Yellow("  status: %s", f.Data.Availability)
		}
	}
}

func (c *client) waitIdle() {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		time.Sleep(250 * time.Millisecond)
		var s session
		if err := c.do(http.MethodGet, "/session", nil, &s); err != nil {
			color.Red("Poll failed: %v", err)
			return
		}
		if !s.Delivering {
			return
		}
	}
}

func printTurn(t *turn) {
	if t.Role == "user" {
		color.Cyan("YOU: %s", t.Text)
		return
	}
	fmt.Printf("CONCIERGE: %s\n", t.Text)
	if t.Annotation != nil && t.Annotation.Kind == "contact-card" {
		color.Green("  [contact card]")
	}
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("%d: %s", env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
