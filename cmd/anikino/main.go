package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/anikino/internal/adapter"
	"github.com/mmcdole/anikino/internal/api"
	"github.com/mmcdole/anikino/internal/cache"
	"github.com/mmcdole/anikino/internal/cover"
	"github.com/mmcdole/anikino/internal/playback"
	"github.com/mmcdole/anikino/internal/retry"
	"github.com/mmcdole/anikino/internal/session"
	"github.com/mmcdole/anikino/internal/store"
	"github.com/mmcdole/anikino/internal/tui"
	"github.com/mmcdole/anikino/internal/tui/styles"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

func main() {
	var (
		showVersion bool
		configFile  string
		serverURL   string
		clearCache  bool
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/anikino/config.yaml)")
	flag.StringVar(&serverURL, "server", "", "backend URL, overrides server.url")
	flag.BoolVar(&clearCache, "clear-cache", false, "remove the local store and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("anikino %s\n", Version)
		return
	}

	if err := run(configFile, serverURL, clearCache); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, serverURL string, clearCache bool) error {
	cfg, err := adapter.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}

	if clearCache {
		if err := adapter.ClearCache(cfg.Cache.Dir); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	}

	logger, logFile, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	} else {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	logger.Info("starting anikino", "version", Version)

	transport := retry.NewTransport(nil, retry.Policy{Count: cfg.Retry.Count, Delay: cfg.Retry.Delay}, logger)

	if !cfg.IsConfigured() {
		return runSetupFlow(transport, logger)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("anikino needs an interactive terminal")
	}

	client, err := api.NewClient(cfg.Server.URL, transport, logger)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Cache.Dir, cfg.Server.URL)
	if err != nil {
		logger.Warn("local store unavailable, keeping state in memory", "error", err)
		if st, err = store.New("", ""); err != nil {
			return err
		}
	}
	defer st.Close()

	metadata := cache.New(st, logger)
	logger.Info("metadata cache warmed", "items", metadata.Warm())

	notices := session.NewNoticeBoard(cfg.Session.NoticeTTL)
	launcher := adapter.NewLauncher(cfg.Player.Command, cfg.Player.Args, logger)
	manager := playback.NewManager(client, adapter.NewMPV(launcher, logger), st, notices, playback.Config{
		SaveInterval:    cfg.Session.SaveInterval,
		AdvanceDelay:    cfg.Session.AdvanceDelay,
		CompletionRatio: cfg.Session.CompletionRatio,
	}, logger)
	defer manager.Close()

	engine := session.New(client, metadata, cover.NewLoader(client, metadata, logger), manager, notices,
		session.Config{PageSize: cfg.Session.PageSize}, logger)
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(
		tui.NewModel(ctx, engine, logger),
		tea.WithAltScreen(),
	)

	logger.Info("starting TUI", "server", client.BaseURL())

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// runSetupFlow asks for the backend URL, checks it answers and saves it
func runSetupFlow(transport *retry.Transport, logger *slog.Logger) error {
	fmt.Println()
	fmt.Println("Welcome to anikino!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	var serverURL string
	for {
		fmt.Print("Enter your server URL (e.g., http://192.168.1.100:5000): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		serverURL = strings.TrimSpace(input)

		if serverURL == "" {
			fmt.Println("Server URL cannot be empty. Please try again.")
			continue
		}

		fmt.Println()
		if err := checkServerWithSpinner(serverURL, transport, logger); err != nil {
			fmt.Printf("\n✗ Could not reach server: %v\n", err)
			fmt.Println("Please check the URL and try again.")
			fmt.Println()
			continue
		}
		break
	}

	if err := adapter.SaveServerURL(serverURL); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved!")
	fmt.Println()
	fmt.Println("Run anikino again to start the application.")
	return nil
}

// checkServerWithSpinner fetches the first catalog page with a visual spinner
func checkServerWithSpinner(serverURL string, transport *retry.Transport, logger *slog.Logger) error {
	client, err := api.NewClient(serverURL, transport, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := client.ListItems(ctx, 1, "")
		resultCh <- err
	}()

	frame := 0
	fmt.Printf("\r%s Contacting server...", styles.SpinnerFrames[frame])

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-resultCh:
			fmt.Print(clearSpinnerLine)
			if err != nil {
				return err
			}
			fmt.Println("✓ Server is reachable")
			return nil

		case <-ticker.C:
			frame++
			fmt.Printf("\r%s Contacting server...", styles.SpinnerFrames[frame%len(styles.SpinnerFrames)])

		case <-ctx.Done():
			fmt.Print(clearSpinnerLine)
			return fmt.Errorf("server check timed out")
		}
	}
}
