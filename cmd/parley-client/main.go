// Command parley-client is a line-based console client for a Parley server.
// It registers a handle, prints relayed messages as they arrive, and accepts
// slash commands on stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/parleychat/parley/pkg/client"
)

const helpText = `Commands:
  /list               List registered users
  /get <user>         Print the chat history shared with <user>
  /msg <user> <text>  Send <text> to <user>
  /help               Show this help
  /quit               Disconnect and exit`

const replyTimeout = 5 * time.Second

func main() {
	addr := flag.String("addr", "localhost:8080", "Server address")
	handle := flag.String("handle", "", "Handle to register (required)")
	flag.Parse()

	if *handle == "" {
		fmt.Fprintln(os.Stderr, "Usage: parley-client -handle <name> [-addr host:port]")
		os.Exit(1)
	}

	conn, err := client.Dial(*addr, *handle, replyTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Registered as %q on %s\n%s\n", conn.Handle(), *addr, helpText)

	// Print relayed messages as they arrive
	go func() {
		for msg := range conn.Incoming() {
			fmt.Printf("\r[%s] %s\n> ", msg.Sender, msg.Content)
		}
		fmt.Println("\rDisconnected from server")
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if errText, ok := conn.ReadError(); ok {
			fmt.Printf("Server error: %s\n", errText)
		}

		switch {
		case line == "/quit":
			return

		case line == "/help":
			fmt.Println(helpText)

		case line == "/list":
			users, err := conn.ListUsers(replyTimeout)
			if err != nil {
				fmt.Printf("List failed: %v\n", err)
				continue
			}
			fmt.Printf("Online: %s\n", strings.Join(users, ", "))

		case strings.HasPrefix(line, "/get "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/get "))
			if target == "" {
				fmt.Println("Usage: /get <user>")
				continue
			}
			messages, err := conn.GetMessages(target, replyTimeout)
			if err != nil {
				fmt.Printf("Get failed: %v\n", err)
				continue
			}
			if len(messages) == 0 {
				fmt.Printf("No messages with %s yet\n", target)
				continue
			}
			for _, m := range messages {
				fmt.Printf("[%s] %s\n", m.Sender, m.Content)
			}

		case strings.HasPrefix(line, "/msg "):
			rest := strings.TrimPrefix(line, "/msg ")
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) != 2 || parts[0] == "" || strings.TrimSpace(parts[1]) == "" {
				fmt.Println("Usage: /msg <user> <text>")
				continue
			}
			if err := conn.SendMessage(parts[0], parts[1]); err != nil {
				fmt.Printf("Send failed: %v\n", err)
			}

		default:
			fmt.Println("Unknown command; /help for the list")
		}
	}
}
