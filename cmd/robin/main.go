package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sproutbotics/robin/pkg/robin"
	"github.com/sproutbotics/robin/pkg/turn"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config (optional, defaults are runnable)")
	flag.Parse()

	cfg, err := robin.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	eng, err := robin.NewEngine(robin.EngineOptions{Config: cfg})
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start error:", err)
		os.Exit(1)
	}

	go operatorLoop(ctx, eng, stop)

	<-ctx.Done()
	if err := eng.Stop(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown error:", err)
		os.Exit(1)
	}
}

// operatorLoop toggles the turn from the keyboard: ENTER starts a turn
// when idle and stops it when listening. The silence detector usually
// stops the turn first; the keypress is the manual override.
func operatorLoop(ctx context.Context, eng *robin.Engine, quit func()) {
	fmt.Println("Press ENTER to start a turn, ENTER again to stop. q + ENTER quits.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "q") || strings.EqualFold(line, "quit") {
			quit()
			return
		}
		switch eng.Current().State {
		case turn.StateIdle:
			if _, applied := eng.Dispatch(turn.StartTurn()); applied {
				fmt.Println("Listening. Press ENTER when done speaking.")
			}
		case turn.StateListening:
			if _, applied := eng.Dispatch(turn.StopTurn()); applied {
				fmt.Println("Thinking...")
			}
		default:
			fmt.Println("Busy. Wait for the reply, or POST /control/abort.")
		}
	}
}
