// Package main provides the catalog command, an admin CLI for the category hierarchy.
//
// Usage:
//
//	catalog [flags] <command> [args]
//	catalog -store sqlite create -title Fiction -image-file ./fiction.jpg
//	catalog update -id 3 -parent 1
//	catalog delete 3
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/di"
	"github.com/shelfkeeper/library-server/internal/errors"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/media/images"
	"github.com/shelfkeeper/library-server/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, rest, err := config.LoadConfig(args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if len(rest) == 0 {
		usage(stderr)
		return 1
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		usage(stderr)
		return 1
	}

	injector := di.NewContainer(cfg)
	defer func() {
		if report := injector.Shutdown(); !report.Succeed {
			fmt.Fprintf(stderr, "Shutdown error: %v\n", report)
		}
	}()

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}

	a := &app{
		categories: do.MustInvoke[*service.CategoryService](injector),
		books:      do.MustInvoke[*service.BookService](injector),
		images:     do.MustInvoke[*images.Storage](injector),
		folder:     cfg.Images.CategoryFolder,
		log:        do.MustInvoke[*logger.Logger](injector).Component("cli"),
		out:        stdout,
	}

	if err := cmd.run(a, ctx, rest[1:]); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

// printError prints domain errors as "CODE: message" and anything else as is.
func printError(w io.Writer, err error) {
	var domainErr *errors.Error
	if !errors.As(err, &domainErr) {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "%s: %s\n", domainErr.Code, domainErr.Error())
	if details, ok := domainErr.Details.(map[string]string); ok {
		for _, field := range sortedKeys(details) {
			fmt.Fprintf(w, "  %s: %s\n", field, details[field])
		}
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: catalog [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range sortedKeys(commands) {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].usage)
	}
}
