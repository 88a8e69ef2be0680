package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

// Reference display client: connects to the robin hub, prints every
// state event, and reconnects forever. On each connect the hub sends
// the current state first, so the display converges immediately.

type stateEvent struct {
	State    string `json:"state"`
	Text     string `json:"text"`
	Sequence uint64 `json:"sequence"`
}

func main() {
	url := flag.String("url", "ws://localhost:8000/ws", "hub websocket URL")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	backoff := time.Second
	for {
		select {
		case <-interrupt:
			return
		default:
		}
		conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
		if err != nil {
			fmt.Printf("connect %s: %v (retrying in %s)\n", *url, err, backoff)
			if !sleepInterruptible(backoff, interrupt) {
				return
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}
		fmt.Println("connected:", *url)
		backoff = time.Second
		readStates(conn, interrupt)
		fmt.Println("disconnected")
	}
}

func readStates(conn *websocket.Conn, interrupt <-chan os.Signal) {
	defer conn.Close()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev stateEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			fmt.Printf("[%s] seq=%-4d %-10s %q\n",
				time.Now().Format("15:04:05"), ev.Sequence, ev.State, ev.Text)
		}
	}()
	select {
	case <-interrupt:
	case <-done:
	}
}

func sleepInterruptible(d time.Duration, interrupt <-chan os.Signal) bool {
	select {
	case <-interrupt:
		return false
	case <-time.After(d):
		return true
	}
}
