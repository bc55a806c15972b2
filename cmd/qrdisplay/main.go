package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrattend/internal/apiclient"
	"qrattend/internal/token"
)

// qrdisplay projects a rotating attendance code in the terminal for one
// subject until the session lifetime runs out or the teacher hits Ctrl-C.
func main() {
	api := flag.String("api", envOr("QRATTEND_API", "http://localhost:8081"), "API base URL")
	email := flag.String("email", os.Getenv("QRATTEND_EMAIL"), "teacher email")
	bearer := flag.String("token", os.Getenv("QRATTEND_TOKEN"), "existing access token (skips login)")
	subject := flag.String("subject", "", "subject id to take attendance for")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-subject is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := apiclient.New(*api)
	if err := client.Health(ctx); err != nil {
		log.Printf("WARNING: %v", err)
	}
	client.Token = *bearer
	if client.Token == "" {
		password := os.Getenv("QRATTEND_PASSWORD")
		if *email == "" || password == "" {
			log.Fatal("set -token, or -email with QRATTEND_PASSWORD")
		}
		if _, err := client.Login(ctx, *email, password); err != nil {
			log.Fatalf("login failed: %v", err)
		}
	}

	if err := run(ctx, client, *subject); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, client *apiclient.Client, subjectID string) error {
	// the first call also tells us how the server wants the display paced
	first, err := client.GenerateQR(ctx, subjectID)
	if err != nil {
		return err
	}
	display := token.NewDisplay(first.RotateEvery, first.SessionTTL)
	display.Start(time.Now())
	defer display.Stop()

	current := first.Data
	display.Rotated(time.Now())
	render(current, display.Remaining(time.Now()))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nsession closed")
			return nil
		case now := <-ticker.C:
			if display.State(now) == token.Expired {
				fmt.Print("\033[H\033[2J")
				fmt.Println("QR session expired. Run again to start a new one.")
				return nil
			}
			if display.NeedsRotation(now) {
				qr, err := client.GenerateQR(ctx, subjectID)
				if err != nil {
					if ctx.Err() != nil {
						continue
					}
					log.Printf("rotate failed, keeping previous code: %v", err)
				} else {
					current = qr.Data
				}
				display.Rotated(now)
			}
			render(current, display.Remaining(now))
		}
	}
}

func render(data string, remaining time.Duration) {
	art, err := token.Terminal(data)
	if err != nil {
		log.Printf("render: %v", err)
		return
	}
	fmt.Print("\033[H\033[2J")
	fmt.Print(art)
	fmt.Printf("\nexpires in %ds\n", int(remaining.Round(time.Second)/time.Second))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
