// Command lyt-admin manages the site content through the backend's admin procedures.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/app"
	"github.com/lytoranea/website/internal/config"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var verbose bool

func usage() {
	fmt.Fprintf(os.Stderr, `lyt-admin
Usage:
  lyt-admin [-backend URL -anon-key KEY] [-dsn DSN] [-redis ADDR] [-v] <cmd> [args]

Session:
  login          -email <email> [-password <pw>|-]   (prompted on stdin when omitted)
  logout
  whoami

Services:
  services
  service-save     [-id <uuid>] -title <t> -short <text> [-slug s] [-full <md>|-full-file <path>] [-icon i] [-order n]
  service-image    -id <uuid> -file <path>
  service-image-rm -id <uuid>

Portfolio:
  projects
  project-save   [-id <uuid>] -category <uuid> -title <t> -location <l> -year <y> [-slug s] [-description d] [-client c]
  project-rm     -id <uuid>
  images         -project <uuid>
  image-add      -project <uuid> -file <path> [-alt text] [-order n]
  image-rm       -id <uuid>
  image-main     -id <uuid>
  categories
  category-save  [-id <uuid>] -name <n> [-slug s]
  category-rm    -id <uuid>

Clients:
  clients
  client-save    [-id <uuid>] -name <n> [-slug s] [-website url] [-order n] [-active=true|false]
  client-rm      -id <uuid>
  client-logo    -id <uuid> -file <path>
  client-logo-rm -id <uuid>

Maintenance:
  hash-password  [-password <pw>|-generate] [-email e -name n]
  migrate        [up|down|status|version|redo|reset|up-by-one]   (needs -dsn)
  version
`)
}

func main() {
	os.Exit(run())
}

// run dispatches subcommands and returns the exit code, so deferred cleanup
// always happens. Backend wiring happens only for commands that need it.
func run() int {
	config.LoadDotenv()
	cfg := config.Bind(flag.CommandLine)
	flag.BoolVar(&verbose, "v", false, "verbose: debug logs and error details on stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		return 2
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("lyt-admin %s (%s)\n", version, buildDate)
		return 0
	case "hash-password":
		return report(cmdHashPassword(os.Stdin, os.Stdout, args))
	case "migrate":
		return report(cmdMigrate(ctx, cfg.DatabaseURL, args))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return report(err)
	}
	defer deps.Close()

	path := cfg.SessionFile
	if path == "" {
		path = session.DefaultPath()
	}
	a := newAdminApp(deps.Dialer, deps.Cache, session.NewFileStore(path), logger)
	a.in, a.out = os.Stdin, os.Stdout

	err = a.run(ctx, cmd, args)
	if errors.Is(err, errUnknownCommand) {
		usage()
		return 2
	}
	return report(err)
}

// ---- helpers ----

// report prints err for the user and returns the exit code.
func report(err error) int {
	if err == nil {
		return 0
	}
	var ue userError
	if errors.As(err, &ue) {
		fmt.Fprintln(os.Stderr, ue)
	} else {
		fmt.Fprintln(os.Stderr, errs.Message(err))
	}
	if verbose {
		fmt.Fprintln(os.Stderr, "detail:", err)
	}
	return 1
}
