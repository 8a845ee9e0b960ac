// Package main provides the Docker container entrypoint
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func main() {
	// Get environment variables with defaults
	runType := getEnvWithDefault("RUN_TYPE", "worker")
	workerType := getEnvWithDefault("WORKER_TYPE", "evaluation")
	workersCount := getEnvWithDefault("WORKERS_COUNT", "1")

	// Execute the appropriate binary based on RUN_TYPE
	switch runType {
	case "worker":
		execBinary("/app/bin/worker", workerType, "--workers", workersCount)
	case "shield":
		execBinary("/app/bin/shield", os.Args[1:]...)
	default:
		fmt.Fprintf(os.Stderr, "Invalid RUN_TYPE. Must be either 'worker' or 'shield'\n")
		fmt.Fprintf(os.Stderr, "Usage: RUN_TYPE=worker WORKER_TYPE=<type> WORKERS_COUNT=<count>\n")
		os.Exit(1)
	}
}

// getEnvWithDefault returns the environment variable value or the default if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// execBinary runs the given binary with arguments, forwarding standard
// streams and exit codes.
func execBinary(path string, args ...string) {
	binary, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve binary path: %v\n", err)
		os.Exit(1)
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}

		fmt.Fprintf(os.Stderr, "Failed to run %s: %v\n", binary, err)
		os.Exit(1)
	}
}
