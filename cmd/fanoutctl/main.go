// Command fanoutctl is the admin CLI for a running fanoutd daemon.
package main

import (
	"os"

	"github.com/gynzy/socket.io-mongo-adapter/internal/cmd/fanoutctl"
)

func adminURL() string {
	if v := os.Getenv("FANOUT_ADMIN"); v != "" {
		return v
	}
	return "http://127.0.0.1:8090"
}

func main() {
	root := fanoutctl.NewRoot(adminURL)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
