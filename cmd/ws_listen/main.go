package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// frame is whiskd's outbound envelope.
type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3001/ws", "whiskd websocket URL")
		types   = flag.String("type", "", "Comma-separated frame types to show (e.g. 'progress,log_line'); empty shows all")
		send    = flag.String("send", "", "Event envelope to send after connecting (e.g. '{\"type\":\"dump_analytics\"}')")
		rawJSON = flag.Bool("raw", false, "Print frames as received instead of formatted")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Protects concurrent writes to the websocket.
	var writeMu sync.Mutex

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	// The daemon pings every 20s; each ping also extends the read deadline.
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	if *send != "" {
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(*send))
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("failed to send event: %v", err)
		}
	}

	filter := newTypeFilter(*types)
	pr := &printer{w: os.Stdout, raw: *rawJSON}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			switch messageType {
			case websocket.TextMessage:
				pr.handle(message, filter)
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

type typeFilter map[string]bool

func newTypeFilter(spec string) typeFilter {
	f := typeFilter{}
	for _, t := range strings.Split(spec, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f[t] = true
		}
	}
	return f
}

func (f typeFilter) allows(typ string) bool {
	return len(f) == 0 || f[typ]
}

// printer formats frames and suppresses repeated progress values.
type printer struct {
	w   io.Writer
	raw bool

	lastProgress *float64
}

func (p *printer) handle(message []byte, filter typeFilter) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Fprintf(p.w, "[TEXT] %s\n", message)
		return
	}
	if !filter.allows(f.Type) {
		return
	}
	if p.raw {
		fmt.Fprintf(p.w, "%s\n", message)
		return
	}

	switch f.Type {
	case "progress":
		var d struct {
			DisplayedProgress float64 `json:"displayed_progress"`
			Completed         bool    `json:"completed"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		v := math.Round(d.DisplayedProgress*100) / 100
		if p.lastProgress != nil && math.Abs(*p.lastProgress-v) < 0.01 && !d.Completed {
			return
		}
		p.lastProgress = &v
		suffix := ""
		if d.Completed {
			suffix = " (completed)"
		}
		fmt.Fprintf(p.w, "[PROGRESS] %.2f%%%s\n", v, suffix)
		return

	case "log_line":
		var d struct {
			Line string `json:"line"`
		}
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprintf(p.w, "[LOG] %s\n", d.Line)
			return
		}

	case "notice":
		var d struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprintf(p.w, "[%s] %s\n", strings.ToUpper(d.Level), d.Message)
			return
		}

	case "physics":
		var d struct {
			Resistance     float64 `json:"resistance"`
			Responsiveness float64 `json:"responsiveness"`
			Locked         bool    `json:"locked"`
		}
		if err := json.Unmarshal(f.Data, &d); err == nil {
			fmt.Fprintf(p.w, "[PHYSICS] resistance=%.4f responsiveness=%.5f locked=%t\n", d.Resistance, d.Responsiveness, d.Locked)
			return
		}
	}

	var pretty any
	if err := json.Unmarshal(f.Data, &pretty); err != nil {
		fmt.Fprintf(p.w, "[%s]\n", strings.ToUpper(f.Type))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Fprintf(p.w, "[%s]\n%s\n\n", strings.ToUpper(f.Type), out)
}
