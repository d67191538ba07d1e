// Package main implements the command line interface of rian.
//
// EDUCATIONAL NOTES:
// ------------------
// This is the entry point of the rian shell. It provides:
// 1. A REPL (Read-Eval-Print Loop) for statements and expressions
// 2. Command-line arguments for files to load and for logging
// 3. A server mode that exposes the loaded tables as a JSON API
//
// The REPL pattern is common in interactive tools:
// - Read: Get input from user
// - Eval: Parse and execute the input
// - Print: Display the result
// - Loop: Repeat until user exits
//
// Prompts and the banner are only printed when stdin is a terminal, so
// that a script piped into rian produces nothing but results.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/frootlab/rian-sub004/internal/logger"
	"github.com/frootlab/rian-sub004/internal/table"
	"github.com/frootlab/rian-sub004/internal/web"
	"github.com/frootlab/rian-sub004/internal/workspace"
)

const (
	version = "0.3.0"
	banner  = `
        _
   _ __(_) __ _ _ __
  | '__| |/ _' | '_ \
  | |  | | (_| | | | |
  |_|  |_|\__,_|_| |_|

  Tables, cursors and expressions - Version %s
  Type '.help' for usage hints or '.quit' to exit.
`
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	logLevel := flag.String("log", "error", "Log level: none, error, info or debug")
	proxyMode := flag.String("mode", "cache", "Proxy mode of loaded files, e.g. cache|incremental")
	serve := flag.Bool("serve", false, "Serve the JSON API instead of starting the REPL")
	port := flag.Int("port", 8080, "Port of the JSON API")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [file ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("rian version %s\n", version)
		return 0
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	mode, err := table.ParseProxyMode(*proxyMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	log := logger.New(os.Stderr, os.Stderr, level)
	ws := workspace.New(log)
	defer func() {
		if err := ws.Close(); err != nil {
			log.Errorf("closing workspace: %v", err)
		}
	}()

	// Load the files given as arguments
	ctx := context.Background()
	for _, path := range flag.Args() {
		if _, err := ws.Load(ctx, path, mode); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *serve {
		if err := web.NewServer(*port, ws).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf(banner, version)
		if names := ws.Names(); len(names) > 0 {
			fmt.Printf("Loaded %d table(s): %s\n\n", len(names), strings.Join(names, ", "))
		}
	}

	r := newREPL(ws, os.Stdin, os.Stdout, interactive)
	r.mode = mode
	r.run(ctx)
	return 0
}
