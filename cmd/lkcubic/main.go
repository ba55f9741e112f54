package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jlindgren/lkcubic/cubic"
	"github.com/jlindgren/lkcubic/internal/config"
	"github.com/jlindgren/lkcubic/internal/logging"
	"github.com/jlindgren/lkcubic/internal/state"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(flags *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `Usage: lkcubic [flags] <command>

Commands:
  structure       print the account's real estates and devices
  information     print the account information
  measurement     print the device's current measurement data
  configuration   print the device's configuration
  valve           print the current valve state
  valve open      open the water valve
  valve close     close the water valve
  status          print a short device summary

Configuration is read from the environment (and .env): LK_EMAIL,
LK_PASSWORD, LK_BASE_URL, LK_SERIAL_NUMBER, LK_HTTP_TIMEOUT,
LK_CACHE_DIR, ENVIRONMENT, LOG_LEVEL.

Flags:
`)
	flags.PrintDefaults()
}

func run(args []string) error {
	flags := pflag.NewFlagSet("lkcubic", pflag.ContinueOnError)
	serial := flags.StringP("serial", "s", "", "device serial number (overrides LK_SERIAL_NUMBER and the cache)")
	bypass := flags.BoolP("bypass", "b", false, "set the vendor bypass flag on read endpoints")
	noCache := flags.Bool("no-cache", false, "skip the local discovery cache")
	showVersion := flags.Bool("version", false, "print version and exit")
	flags.Usage = func() { usage(flags) }

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println(Version)
		return nil
	}

	command := flags.Args()
	if len(command) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := cubic.NewSession(cfg.BaseURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger)
	defer session.Close()

	if err := session.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	logger.Debug("session established",
		slog.Time("access_token_expire", session.AccessTokenExpire()),
	)

	switch command[0] {
	case "structure":
		return printResult(cubic.NewUserClient(session).GetStructure(ctx, *bypass))
	case "information":
		return printResult(cubic.NewUserClient(session).GetInformation(ctx, *bypass))
	}

	// Everything below operates on a single device.
	sn, err := resolveSerial(ctx, cfg, session, *serial, *noCache, logger)
	if err != nil {
		return err
	}

	switch command[0] {
	case "measurement":
		return printResult(cubic.NewCubicClient(session, sn).GetMeasurement(ctx, *bypass))
	case "configuration":
		return printResult(cubic.NewCubicClient(session, sn).GetConfiguration(ctx, *bypass))
	case "valve":
		return runValve(ctx, session, sn, command[1:])
	case "status":
		return runStatus(ctx, session, sn, *bypass)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command[0])
	}
}

// resolveSerial finds the device serial to operate on: the --serial
// flag first, then LK_SERIAL_NUMBER, then the local discovery cache,
// and finally a structure lookup whose result is cached for the next
// run.
func resolveSerial(ctx context.Context, cfg *config.Config, session *cubic.Session, flagSerial string, noCache bool, logger *slog.Logger) (string, error) {
	if flagSerial != "" {
		return flagSerial, nil
	}

	if cfg.SerialNumber != "" {
		return cfg.SerialNumber, nil
	}

	var store *state.Store
	if !noCache {
		var err error
		store, err = state.Open(cfg.CacheDir)
		if err != nil {
			logger.Warn("discovery cache unavailable", slog.String("error", err.Error()))
		} else {
			defer store.Close()

			if cached, ok, err := store.Discovery(cfg.Email); err == nil && ok {
				logger.Debug("serial number from cache", slog.String("serial", cached.SerialNumber))
				return cached.SerialNumber, nil
			}
		}
	}

	users := cubic.NewUserClient(session)
	structure, err := users.GetStructure(ctx, false)
	if err != nil {
		return "", fmt.Errorf("discovering device: %w", err)
	}

	sn, err := cubic.FirstSerialNumber(structure)
	if err != nil {
		return "", fmt.Errorf("discovering device: %w", err)
	}

	logger.Debug("serial number discovered", slog.String("serial", sn))

	if store != nil {
		// Already resolved by the structure fetch, so this is cheap.
		userID, err := users.UserID(ctx)
		if err != nil {
			userID = ""
		}

		entry := state.Discovery{UserID: userID, SerialNumber: sn, UpdatedAt: time.Now().UTC()}
		if err := store.PutDiscovery(cfg.Email, entry); err != nil {
			logger.Warn("caching discovery failed", slog.String("error", err.Error()))
		}
	}

	return sn, nil
}

func runValve(ctx context.Context, session *cubic.Session, sn string, args []string) error {
	valve := cubic.NewCubicAccessClient(session, sn)

	if len(args) == 0 {
		return printResult(valve.GetValve(ctx))
	}

	switch args[0] {
	case "open":
		return printResult(valve.OpenValve(ctx))
	case "close":
		return printResult(valve.CloseValve(ctx))
	default:
		return fmt.Errorf("unknown valve action %q (want open or close)", args[0])
	}
}

// runStatus fetches the measurement and valve state concurrently and
// prints a short summary.
func runStatus(ctx context.Context, session *cubic.Session, sn string, bypass bool) error {
	var (
		measurement json.RawMessage
		valveState  json.RawMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		measurement, err = cubic.NewCubicClient(session, sn).GetMeasurement(gctx, bypass)
		return err
	})
	g.Go(func() error {
		var err error
		valveState, err = cubic.NewCubicAccessClient(session, sn).GetValve(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("device:       %s\n", sn)
	if volume := gjson.GetBytes(measurement, "volumeTotalDay"); volume.Exists() {
		fmt.Printf("volume today: %s l\n", volume.String())
	}
	fmt.Printf("valve:        %s\n", string(valveState))

	return nil
}

func printResult(body json.RawMessage, err error) error {
	if err != nil {
		return err
	}

	fmt.Println(string(body))

	return nil
}
