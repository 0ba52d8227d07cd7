package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/parleychat/parley/pkg/server"
)

func main() {
	configPath := flag.String("config", "~/.parley/server.toml", "Path to config file")
	tcpPort := flag.Int("port", 0, "TCP port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging to stderr")
	flag.Parse()

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	config := tomlConfig.ToServerConfig()
	if *tcpPort != 0 {
		config.TCPPort = *tcpPort
	}

	debugOut := io.Discard
	if *debug {
		debugOut = os.Stderr
	}
	server.InitLoggers(os.Stderr, debugOut)

	srv := server.NewServer(config, server.NewMetrics())
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	log.Printf("Parley server ready on %s", srv.Addr())

	// Block until interrupted, then drain gracefully
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		os.Exit(1)
	}
}
