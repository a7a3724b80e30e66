// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Command xiaoshubao runs the picture-book generation backend.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/n1n-api/xiaoshubao/internal/version"
)

type (
	// cmd corresponds to the top-level `xiaoshubao` command.
	cmd struct {
		// Version prints the build version and exits.
		Version kong.VersionFlag `help:"Show version."`
		// Serve is the sub-command running the backend server.
		Serve cmdServe `cmd:"" help:"Run the picture-book backend server."`
		// Healthcheck is the sub-command to check if the server is healthy.
		Healthcheck cmdHealthcheck `cmd:"" help:"Docker HEALTHCHECK command."`
	}
	// cmdServe corresponds to the `xiaoshubao serve` command.
	cmdServe struct {
		Addr          string        `help:"Address the HTTP server listens on." default:":8080"`
		ConfigDir     string        `help:"Directory holding the provider, storage and prompt configuration." default:"./config" type:"path"`
		WatchInterval time.Duration `help:"How often the config directory is polled for changes." default:"5s"`
		LogLevel      string        `help:"Log level." enum:"debug,info,warn,error" default:"info"`
		RedisAddr     string        `help:"Redis address for the task state registry. In-memory when empty." env:"REDIS_ADDR"`
		MongoURI      string        `help:"MongoDB URI for the history catalog. In-memory when empty." env:"MONGO_URI"`
		MongoDatabase string        `help:"MongoDB database for the history catalog." env:"MONGO_DATABASE" default:"xiaoshubao"`
	}
	// cmdHealthcheck corresponds to the `xiaoshubao healthcheck` command.
	cmdHealthcheck struct {
		Addr string `help:"Address of the server to check." default:"localhost:8080"`
	}
)

type (
	serveFn       func(context.Context, cmdServe, io.Writer, io.Writer) error
	healthcheckFn func(context.Context, cmdHealthcheck, io.Writer) error
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, serve, healthcheck)
}

// doMain parses the command line arguments and executes the selected
// command. stdout, stderr, exitFn and the command functions are parameters so
// tests can drive the CLI without a process.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int),
	sf serveFn,
	hf healthcheckFn,
) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("xiaoshubao"),
		kong.Description("Picture-book generation backend."),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
		kong.Vars{"version": version.Parse()},
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch parsed.Command() {
	case "serve":
		if err := sf(ctx, c.Serve, stdout, stderr); err != nil {
			log.Fatalf("Error running server: %v", err)
		}
	case "healthcheck":
		if err := hf(ctx, c.Healthcheck, stdout); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	default:
		panic("unreachable")
	}
}
