// Main package for the fitness command line client. Reads one JSON request
// per line from stdin, sends it to the server, and prints each response.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/pkg/client"
	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	serverAddress := flag.String("server", "127.0.0.1:9000", "Address of the fitness server")
	requestTimeout := flag.Duration("timeout", 10*time.Second, "How long to wait for each response")
	flag.Parse()

	session := client.CreateSession(client.SessionParams{
		ServerAddress: *serverAddress,
		Logger:        logger,
	})
	defer session.Close()

	if err := session.Connect(); err != nil {
		logger.Error("Failed to connect", zap.String("server", *serverAddress), zap.Error(err))
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req wire.Message
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintf(os.Stderr, "not a JSON object: %v\n", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), *requestTimeout)
		resp, err := session.Request(ctx, req)
		cancel()
		if err != nil {
			logger.Error("Request failed", zap.Error(err))
			os.Exit(1)
		}

		pretty, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			logger.Error("Failed to render response", zap.Error(err))
			continue
		}
		fmt.Println(string(pretty))
	}

	if err := scanner.Err(); err != nil {
		logger.Error("Failed to read stdin", zap.Error(err))
		os.Exit(1)
	}
}
