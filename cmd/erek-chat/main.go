// Command erek-chat is a terminal chat client for the erek server. It
// streams replies as they arrive and prints next-step suggestions after
// each turn. Ctrl-C aborts the in-flight turn; EOF or /quit exits.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"erek/internal/client"
)

func main() {
	addr := flag.String("addr", "http://localhost:8090", "server base URL")
	token := flag.String("token", "", "bearer token for an authenticated session pool")
	session := flag.String("session", "", "resume an existing session id")
	flag.Parse()

	cons := client.New(*addr, client.Events{
		OnChunk: func(chunk string) {
			fmt.Print(chunk)
		},
	})
	if *token != "" {
		cons.SetAuthToken(*token)
	}
	if *session != "" {
		cons.SetSession(*session)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range interrupts {
			cons.Abort()
		}
	}()

	fmt.Println("erek-chat. Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		result, err := cons.Send(context.Background(), line)
		fmt.Println()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("(aborted)")
				continue
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if len(result.Suggestions) > 0 {
			fmt.Println("next steps:")
			for _, s := range result.Suggestions {
				fmt.Printf("  - %s\n", s)
			}
		}
	}
}
