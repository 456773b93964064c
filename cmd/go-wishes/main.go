package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
)

// main is the application entry point.
// It delegates execution to runMain to ensure that deferred function calls
// (like closing log files) are executed before the process terminates.
func main() {
	os.Exit(runMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

var commands = []string{config.CmdRun, config.CmdMakeTemplates, config.CmdRenderSample, config.CmdHistory}

// options holds the parsed command line.
type options struct {
	command    string
	configPath string
	date       string
	dryRun     bool
	daemon     bool
	debug      bool
	storeToken bool
	version    bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, config.MsgUsage)
		fs.PrintDefaults()
	}

	fs.BoolVar(&o.version, config.FlagVersion, false, config.FlagDescVersion)
	fs.BoolVar(&o.debug, config.FlagDebug, false, config.FlagDescDebug)
	fs.StringVar(&o.configPath, config.FlagConfig, "", config.FlagDescConfig)
	fs.BoolVar(&o.dryRun, config.FlagDryRun, false, config.FlagDescDryRun)
	fs.StringVar(&o.date, config.FlagDate, "", config.FlagDescDate)
	fs.BoolVar(&o.daemon, config.FlagDaemon, false, config.FlagDescDaemon)
	fs.BoolVar(&o.storeToken, config.FlagStoreToken, false, config.FlagDescStoreToken)

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	o.command = config.CmdRun
	switch fs.NArg() {
	case 0:
	case 1:
		o.command = fs.Arg(0)
	default:
		fs.Usage()
		return o, errors.New(config.MsgUsage)
	}
	if !slices.Contains(commands, o.command) {
		fs.Usage()
		return o, fmt.Errorf("%s: %q", config.ErrUnknownCommand, o.command)
	}
	return o, nil
}

// runMain manages the application lifecycle, argument parsing, and exit codes.
// A completed run exits 0 even when some members failed; the summary lists them.
func runMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return config.ExitCodeSuccess
		}
		return config.ExitCodeUsage
	}

	if opts.version {
		printVersion(stdout)
		return config.ExitCodeSuccess
	}

	logCloser := setupLogging(stderr, opts.debug)
	if logCloser != nil {
		defer func() {
			_ = logCloser.Close()
		}()
	}

	// Cancels on SIGINT (Ctrl+C) or SIGTERM; a run in progress defers what it has not started.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logStartupInfo()

	if err := run(ctx, opts, stdin, stdout); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		_, _ = fmt.Fprintln(stderr, err)
		return config.ExitCodeError
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return config.ExitCodeSuccess
}

// run loads the settings and dispatches the selected command.
func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	if opts.storeToken {
		token, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return errors.New(config.ErrTokenEmpty)
		}
		return config.StoreToken(token)
	}

	settings, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	settings.ResolveToken()

	a := &app{settings: settings, out: stdout, clock: engine.RealClock{}}

	switch opts.command {
	case config.CmdMakeTemplates:
		return a.makeTemplates()
	case config.CmdRenderSample:
		return a.renderSample()
	case config.CmdHistory:
		return a.history(ctx, opts.date)
	default:
		if opts.daemon {
			return a.daemon(ctx, opts.dryRun)
		}
		return a.runOnce(ctx, opts.date, opts.dryRun)
	}
}

// printVersion outputs the build information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, config.MsgVersionOutput,
		config.AppName,
		config.Version,
		config.Commit,
		config.Date,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
	)
}

// setupLogging configures the default slog logger: JSON to the console (stderr,
// so stdout carries only command output), plus a log file in the user's cache directory.
func setupLogging(console io.Writer, debugMode bool) io.Closer {
	writers := []io.Writer{console}
	var logFile *os.File

	if logPath, err := getLogFilePath(); err == nil {
		// O_TRUNC resets logs on restart to prevent indefinite growth.
		f, err := os.OpenFile(logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logPath, err)
		}
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), opts))
	slog.SetDefault(logger)

	if logFile == nil {
		return nil
	}
	return logFile
}

// getLogFilePath determines the platform-specific cache directory for logs.
func getLogFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}

	appDir := filepath.Join(cacheDir, config.AppID)

	// Ensure the directory exists with restricted permissions (700).
	if err := os.MkdirAll(appDir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	return filepath.Join(appDir, config.LogFileName), nil
}
