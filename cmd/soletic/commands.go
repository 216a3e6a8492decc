package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	soletic "github.com/monjuik/go-soletic"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const usageText = `soletic: A CLI tool for querying the Solana blockchain.

Use this tool to query the Solana blockchain for when a program was first deployed.
Use the 'setup' command to configure your network and preferences.

Usage:
  soletic <command> [flags]

Commands:
  setup                         store network, cache and logging preferences
  update                        change individual preferences
  get-deployment-time <address> print the deployment time of a program
  clear-cache                   remove every cached deployment time
  list-config                   print the configuration file
  list-settings                 print the effective settings
  del-config <key>...           unset preferences (network, cache, verbose, log_file)
  serve                         expose lookups over HTTP
`

type app struct {
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	getenv       func(string) string
	settingsPath func() (string, error)
	cachePath    func() (string, error)
	clients      func(apiKey string, logger soletic.Logger) soletic.ClientFactory
}

func newApp() *app {
	return &app{
		stdin:        os.Stdin,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		getenv:       os.Getenv,
		settingsPath: soletic.DefaultSettingsPath,
		cachePath:    soletic.DefaultCacheFilePath,
		clients:      soletic.HeliusClients,
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usageText)
		return exitUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "-h", "--help", "help":
		fmt.Fprint(a.stdout, usageText)
		return exitSuccess
	case "setup":
		return a.setup(rest)
	case "update":
		return a.update(rest)
	case "get-deployment-time":
		return a.getDeploymentTime(ctx, rest)
	case "clear-cache":
		return a.clearCache(rest)
	case "list-config":
		return a.listConfig(rest)
	case "list-settings":
		return a.listSettings(rest)
	case "del-config":
		return a.delConfig(rest)
	case "serve":
		return a.serve(ctx, rest)
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n\n%s", command, usageText)
		return exitUsage
	}
}

type preferenceFlags struct {
	network string
	cache   bool
	verbose bool
	logFile string
}

func (p *preferenceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.network, "n", "", `network: "mainnet" or "devnet"`)
	fs.StringVar(&p.network, "network", "", `network: "mainnet" or "devnet"`)
	fs.BoolVar(&p.cache, "cache", true, "use the deployment cache")
	fs.BoolVar(&p.verbose, "v", false, "enable verbose logging")
	fs.BoolVar(&p.verbose, "verbose", false, "enable verbose logging")
	fs.StringVar(&p.logFile, "log-file", "", "log file path, relative to the home directory unless absolute")
}

func (a *app) setup(args []string) int {
	fs := a.newFlagSet("setup")
	var prefs preferenceFlags
	prefs.register(fs)
	force := fs.Bool("force", false, "overwrite the configuration without prompting")
	if _, code, ok := a.parse(fs, args, 0); !ok {
		return code
	}
	if !a.requireAPIKey() {
		return exitFailure
	}

	path, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}

	reader := bufio.NewReader(a.stdin)
	if !settings.IsEmpty() && !*force {
		fmt.Fprintln(a.stdout, "Existing configuration found:")
		a.printSettings(settings)
		answer, err := a.prompt(reader, "Would you like to update your configuration? [y/N]: ")
		if err != nil || !isYes(answer) {
			fmt.Fprintln(a.stdout, "Using existing configuration.")
			return exitSuccess
		}
	}

	network, err := a.chooseNetwork(reader, prefs.network)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitFailure
	}

	cache := prefs.cache
	settings.Network = network
	settings.Cache = &cache
	settings.Verbose = prefs.verbose
	settings.LogFile = prefs.logFile
	if !a.ensureLogDirectory(settings) {
		return exitFailure
	}
	if !a.saveSettings(path, settings) {
		return exitFailure
	}
	fmt.Fprintln(a.stdout, "Setup complete.")
	return exitSuccess
}

func (a *app) update(args []string) int {
	fs := a.newFlagSet("update")
	var prefs preferenceFlags
	prefs.register(fs)
	if _, code, ok := a.parse(fs, args, 0); !ok {
		return code
	}
	if !a.requireAPIKey() {
		return exitFailure
	}

	visited := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { visited[f.Name] = true })
	if len(visited) == 0 {
		fmt.Fprintln(a.stdout, "Nothing was updated; no parameters were passed.")
		return exitSuccess
	}

	path, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}
	if visited["n"] || visited["network"] {
		network, err := soletic.ParseNetwork(prefs.network)
		if err != nil {
			fmt.Fprintln(a.stderr, err)
			return exitUsage
		}
		settings.Network = network
	}
	if visited["cache"] {
		cache := prefs.cache
		settings.Cache = &cache
	}
	if visited["v"] || visited["verbose"] {
		settings.Verbose = prefs.verbose
	}
	if visited["log-file"] {
		settings.LogFile = prefs.logFile
	}
	if !a.ensureLogDirectory(settings) {
		return exitFailure
	}
	if !a.saveSettings(path, settings) {
		return exitFailure
	}

	fmt.Fprintln(a.stdout, "Configuration updated to:")
	a.printSettings(settings)
	return exitSuccess
}

func (a *app) getDeploymentTime(ctx context.Context, args []string) int {
	fs := a.newFlagSet("get-deployment-time")
	var (
		network     string
		verbose     bool
		debug       bool
		ignoreCache bool
		format      string
		race        bool
	)
	fs.StringVar(&network, "n", "", `override the configured network: "mainnet" or "devnet"`)
	fs.StringVar(&network, "network", "", `override the configured network: "mainnet" or "devnet"`)
	fs.BoolVar(&verbose, "v", false, "enable verbose logging")
	fs.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	fs.BoolVar(&debug, "d", false, "enable debug logging")
	fs.BoolVar(&debug, "debug", false, "enable debug logging")
	fs.BoolVar(&ignoreCache, "ignore-cache", false, "resolve without reading or writing the cache")
	fs.StringVar(&format, "f", "unix", `output format: "unix" or "datetime"`)
	fs.StringVar(&format, "format", "unix", `output format: "unix" or "datetime"`)
	fs.BoolVar(&race, "race", false, "walk program and program-data histories concurrently")
	positional, code, ok := a.parse(fs, args, 1)
	if !ok {
		return code
	}
	if format != "unix" && format != "datetime" {
		fmt.Fprintf(a.stderr, "unsupported format %q: expected \"unix\" or \"datetime\"\n", format)
		return exitUsage
	}
	apiKey := a.getenv(soletic.HeliusAPIKeyEnv)
	if !a.requireAPIKey() {
		return exitFailure
	}

	_, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}
	settings = settings.Effective()
	if network != "" {
		parsed, err := soletic.ParseNetwork(network)
		if err != nil {
			fmt.Fprintln(a.stderr, err)
			return exitUsage
		}
		settings.Network = parsed
	}

	logger, closer, ok := a.openLogger(settings, verbose || settings.Verbose, debug)
	if !ok {
		return exitFailure
	}
	defer closer.Close()

	useCache := settings.CacheEnabled() && !ignoreCache
	opts := []soletic.Option{soletic.WithLogger(logger), soletic.WithRacing(race)}
	if useCache {
		cache, err := a.openCache(logger)
		if err != nil {
			logger.Warnf("cache unavailable, resolving without it: %v", err)
			useCache = false
		} else {
			opts = append(opts, soletic.WithCache(cache))
		}
	}

	analyzer := soletic.NewAnalyzer(a.clients(apiKey, logger), opts...)
	result := analyzer.DeploymentTimestamp(ctx, positional[0], settings.Network, useCache)
	// Resolution failures are reported on stdout and still exit 0.
	fmt.Fprintln(a.stdout, renderResult(result, format))
	return exitSuccess
}

func renderResult(result soletic.Result, format string) string {
	if result.Err != nil || format == "unix" {
		return result.String()
	}
	if result.Timestamp == soletic.UnknownTimestamp {
		return "unknown (no successful transaction with a block time found)"
	}
	return time.Unix(result.Timestamp, 0).Local().Format("2006-01-02 15:04:05")
}

func (a *app) clearCache(args []string) int {
	fs := a.newFlagSet("clear-cache")
	if _, code, ok := a.parse(fs, args, 0); !ok {
		return code
	}
	path, err := a.cachePath()
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitFailure
	}
	store, err := soletic.OpenFileStore(path, nil)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitFailure
	}
	if err := store.Clear(); err != nil {
		fmt.Fprintln(a.stderr, err)
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "Cache cleared: %s\n", path)
	return exitSuccess
}

func (a *app) listConfig(args []string) int {
	fs := a.newFlagSet("list-config")
	if _, code, ok := a.parse(fs, args, 0); !ok {
		return code
	}
	path, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "Configuration file: %s\n", path)
	if settings.IsEmpty() {
		fmt.Fprintln(a.stdout, "No configuration found. Run 'soletic setup' to create one.")
		return exitSuccess
	}
	a.printSettings(settings)
	return exitSuccess
}

func (a *app) listSettings(args []string) int {
	fs := a.newFlagSet("list-settings")
	if _, code, ok := a.parse(fs, args, 0); !ok {
		return code
	}
	path, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}
	effective := settings.Effective()
	for _, key := range soletic.SettingKeys {
		value, set := effective.Value(key)
		if !set {
			value = "-"
		}
		fmt.Fprintf(a.stdout, "  %s: %s\n", key, value)
	}
	logPath, err := effective.LogFilePath()
	if err != nil {
		logPath = err.Error()
	}
	cachePath, err := a.cachePath()
	if err != nil {
		cachePath = err.Error()
	}
	apiKey := "not set"
	if a.getenv(soletic.HeliusAPIKeyEnv) != "" {
		apiKey = "set"
	}
	fmt.Fprintf(a.stdout, "  config_file: %s\n", path)
	fmt.Fprintf(a.stdout, "  log_path: %s\n", logPath)
	fmt.Fprintf(a.stdout, "  cache_file: %s\n", cachePath)
	fmt.Fprintf(a.stdout, "  %s: %s\n", soletic.HeliusAPIKeyEnv, apiKey)
	return exitSuccess
}

func (a *app) delConfig(args []string) int {
	fs := a.newFlagSet("del-config")
	keys, code, ok := a.parse(fs, args, -1)
	if !ok {
		return code
	}
	if len(keys) == 0 {
		fmt.Fprintf(a.stderr, "del-config expects at least one key: %s\n", strings.Join(soletic.SettingKeys, ", "))
		return exitUsage
	}
	path, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}
	for _, key := range keys {
		if err := settings.Delete(key); err != nil {
			fmt.Fprintln(a.stderr, err)
			return exitUsage
		}
	}
	if !a.saveSettings(path, settings) {
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "Removed: %s\n", strings.Join(keys, ", "))
	return exitSuccess
}

func (a *app) serve(ctx context.Context, args []string) int {
	fs := a.newFlagSet("serve")
	addr := fs.String("addr", ":8080", "listen address")
	network := fs.String("network", "", `default network: "mainnet" or "devnet"`)
	race := fs.Bool("race", false, "walk program and program-data histories concurrently")
	verbose := fs.Bool("v", false, "enable verbose logging")
	debug := fs.Bool("d", false, "enable debug logging")
	if _, code, ok := a.parse(fs, args, 0); !ok {
		return code
	}
	apiKey := a.getenv(soletic.HeliusAPIKeyEnv)
	if !a.requireAPIKey() {
		return exitFailure
	}

	_, settings, ok := a.loadSettings()
	if !ok {
		return exitFailure
	}
	settings = settings.Effective()
	if *network != "" {
		parsed, err := soletic.ParseNetwork(*network)
		if err != nil {
			fmt.Fprintln(a.stderr, err)
			return exitUsage
		}
		settings.Network = parsed
	}

	logger, closer, ok := a.openLogger(settings, *verbose || settings.Verbose, *debug)
	if !ok {
		return exitFailure
	}
	defer closer.Close()

	opts := []soletic.Option{soletic.WithLogger(logger), soletic.WithRacing(*race)}
	if cache, err := a.openCache(logger); err != nil {
		logger.Warnf("cache unavailable, serving without it: %v", err)
	} else {
		opts = append(opts, soletic.WithCache(cache))
	}
	analyzer := soletic.NewAnalyzer(a.clients(apiKey, logger), opts...)

	server := &http.Server{
		Addr:              *addr,
		Handler:           soletic.NewServer(analyzer, settings.Network, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Errorf("listen on %s: %v", *addr, err)
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "Listening at %s\n", listenURL(listener.Addr()))
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("server stopped: %v", err)
		return exitFailure
	}
	return exitSuccess
}

// listenURL renders the bound address, naming unspecified hosts localhost.
func listenURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse accepts flags before and after positional arguments. want is the
// exact positional count, or -1 for any.
func (a *app) parse(fs *flag.FlagSet, args []string, want int) ([]string, int, bool) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, exitSuccess, false
			}
			return nil, exitUsage, false
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
	if want >= 0 && len(positional) != want {
		fmt.Fprintf(a.stderr, "%s expects %d argument(s), got %d\n", fs.Name(), want, len(positional))
		return nil, exitUsage, false
	}
	return positional, exitSuccess, true
}

func (a *app) requireAPIKey() bool {
	if a.getenv(soletic.HeliusAPIKeyEnv) != "" {
		return true
	}
	fmt.Fprintf(a.stderr, "%s not found in environment. Please define %s in your .env file.\n", soletic.HeliusAPIKeyEnv, soletic.HeliusAPIKeyEnv)
	return false
}

func (a *app) loadSettings() (string, soletic.Settings, bool) {
	path, err := a.settingsPath()
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return "", soletic.Settings{}, false
	}
	settings, err := soletic.LoadSettings(path)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return "", soletic.Settings{}, false
	}
	return path, settings, true
}

func (a *app) saveSettings(path string, settings soletic.Settings) bool {
	if err := soletic.SaveSettings(path, settings); err != nil {
		fmt.Fprintln(a.stderr, err)
		return false
	}
	fmt.Fprintf(a.stdout, "Configuration saved to %s\n", path)
	return true
}

func (a *app) printSettings(settings soletic.Settings) {
	for _, key := range soletic.SettingKeys {
		if value, ok := settings.Value(key); ok {
			fmt.Fprintf(a.stdout, "  %s: %s\n", key, value)
		}
	}
}

func (a *app) ensureLogDirectory(settings soletic.Settings) bool {
	if settings.LogFile == "" {
		return true
	}
	path, err := settings.LogFilePath()
	if err == nil {
		err = os.MkdirAll(filepath.Dir(path), 0o755)
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "create log directory: %v\n", err)
		return false
	}
	return true
}

func (a *app) openLogger(settings soletic.Settings, verbose, debug bool) (soletic.Logger, io.Closer, bool) {
	logPath, err := settings.LogFilePath()
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return nil, nil, false
	}
	logger, closer, err := soletic.NewCLILogger(soletic.LogOptions{
		Tag:      "soletic",
		Console:  a.stderr,
		Verbose:  verbose,
		Debug:    debug,
		FilePath: logPath,
	})
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return nil, nil, false
	}
	return logger, closer, true
}

func (a *app) openCache(logger soletic.Logger) (*soletic.TieredCache, error) {
	path, err := a.cachePath()
	if err != nil {
		return nil, err
	}
	return soletic.OpenCache(path, logger)
}

func (a *app) chooseNetwork(reader *bufio.Reader, flagValue string) (soletic.Network, error) {
	if flagValue != "" {
		return soletic.ParseNetwork(flagValue)
	}
	for {
		answer, err := a.prompt(reader, "Which network do you want to use? (mainnet, devnet): ")
		if network, parseErr := soletic.ParseNetwork(answer); parseErr == nil {
			return network, nil
		}
		if err != nil {
			return "", fmt.Errorf("network selection: %w", err)
		}
		fmt.Fprintf(a.stdout, "Error: %q is not one of mainnet, devnet.\n", answer)
	}
}

func (a *app) prompt(reader *bufio.Reader, question string) (string, error) {
	fmt.Fprint(a.stdout, question)
	line, err := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return line, err
	}
	return line, nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
