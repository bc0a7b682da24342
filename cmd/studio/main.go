package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"

	"genstudio/internal/api"
	"genstudio/internal/config"
	"genstudio/internal/generation"
	"genstudio/internal/logging"
	"genstudio/internal/session"
	"genstudio/internal/storage"
)

// app is what every subcommand runs against.
type app struct {
	log     logrus.FieldLogger
	session *session.Store
	gen     *generation.Client
	in      *bufio.Reader
	out     io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"register-ai": {"register-ai -email E -password P -first-name F -company C [-activity A]", cmdRegisterAI},
	"verify":      {"verify -email E -code 123456", cmdVerify},
	"resend-otp":  {"resend-otp -email E", cmdResendOTP},
	"login":       {"login -email E -password P", cmdLogin},
	"login-ai":    {"login-ai -email E -password P", cmdLoginAI},
	"logout":      {"logout", cmdLogout},
	"whoami":      {"whoami [-refresh]", cmdWhoami},
	"profile":     {"profile [-first-name F] [-last-name L] [-phone P] [-company C] [-activity A]", cmdProfile},
	"avatar":      {"avatar FILE", cmdAvatar},
	"logo":        {"logo FILE", cmdLogo},
	"password":    {"password -old P -new P", cmdPassword},
	"onboarded":   {"onboarded", cmdOnboarded},
	"plans":       {"plans", cmdPlans},
	"create":      {"create [-watch=false]", cmdCreate},
	"jobs":        {"jobs [-id ID] [-watch]", cmdJobs},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: studio <command> [flags]")
	fmt.Fprintln(os.Stderr)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	os.Exit(run(cmd))
}

func run(cmd command) int {
	cfg := config.LoadClient()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	log := logging.NewWithOutput(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to open local state")
		return 1
	}
	defer stores.Close()

	client := api.New(cfg.APIBaseURL, api.WithTimeout(cfg.HTTPTimeout), api.WithLogger(log))
	a := &app{
		log:     log,
		session: session.New(client, stores.Tokens, stores.Snapshot, log),
		gen:     generation.New(client, log),
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}

	if err := a.session.Hydrate(ctx); err != nil {
		log.WithError(err).Error("failed to restore session")
		return 1
	}

	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(os.Stderr, "Error:", errorText(err))
		log.WithError(err).Debug("command failed")
		return 1
	}
	return 0
}

// errorText prefers the backend's message and falls back to the error
// itself for local failures.
func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return api.MessageOf(err)
	}
	return err.Error()
}
