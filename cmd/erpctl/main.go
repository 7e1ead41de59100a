package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"erp-server/internal/adapters/cli"

	"github.com/joho/godotenv"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(version, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "erpctl:", err)
		os.Exit(1)
	}
}
