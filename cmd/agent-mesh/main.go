// ABOUTME: Entry point for the agent-mesh coordination hub
// ABOUTME: Serves the HTTP API, event stream, and timeout sweeper

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/agent-mesh/internal/api"
	"github.com/2389/agent-mesh/internal/auth"
	"github.com/2389/agent-mesh/internal/client"
	"github.com/2389/agent-mesh/internal/config"
	"github.com/2389/agent-mesh/internal/events"
	"github.com/2389/agent-mesh/internal/groups"
	"github.com/2389/agent-mesh/internal/memory"
	"github.com/2389/agent-mesh/internal/registry"
	"github.com/2389/agent-mesh/internal/router"
	"github.com/2389/agent-mesh/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                           _                           _
  __ _  __ _  ___ _ __ | |_      _ __ ___   ___  ___| |__
 / _' |/ _' |/ _ \ '_ \| __|____| '_ ' _ \ / _ \/ __| '_ \
| (_| | (_| |  __/ | | | ||_____| | | | | |  __/\__ \ | | |
 \__,_|\__, |\___|_| |_|\__|    |_| |_| |_|\___||___/_| |_|
       |___/
`

// getConfigPath returns the path to the mesh config file.
// Priority: MESH_CONFIG env var > XDG_CONFIG_HOME/agent-mesh/config.yaml > ~/.config/agent-mesh/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MESH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agent-mesh", "config.yaml")
}

// getDataPath returns the path to the mesh data directory.
// Priority: XDG_DATA_HOME/agent-mesh > ~/.local/share/agent-mesh
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "agent-mesh")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agent-mesh <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the mesh hub server")
		fmt.Println("  init     Create a config file with a random secret")
		fmt.Println("  health   Check hub health")
		fmt.Println("  agents   List registered agents")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting agent-mesh",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
	)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	broker := events.NewBroker(logger)
	defer broker.Close()

	presenceAge := cfg.Mesh.PresenceAge
	if presenceAge <= 0 {
		presenceAge = registry.DefaultPresenceAge
	}

	rtr := router.New(st, broker, logger)
	handler := api.NewHandler(
		registry.New(st, broker, presenceAge, logger),
		rtr,
		groups.New(st, broker, logger),
		memory.New(st, broker, logger),
		broker,
		auth.NewJWTVerifier([]byte(cfg.Auth.Secret)),
		logger,
	)
	e := handler.NewServer(cfg.Auth.Secret)

	go rtr.RunSweeper(ctx, cfg.Mesh.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.Server.HTTPAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runInit writes a starter config file with a freshly generated secret.
// Refuses to overwrite an existing file.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	dbPath := filepath.Join(getDataPath(), "mesh.db")
	content := fmt.Sprintf(`server:
  http_addr: "127.0.0.1:8080"

database:
  path: "%s"

auth:
  secret: "%s"

mesh:
  presence_age: "5m"
  sweep_interval: "60s"

logging:
  level: "info"
  format: "text"
`, dbPath, secret)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Config written to %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c := client.New("http://"+cfg.Server.HTTPAddr, cfg.Auth.Secret)
	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c := client.New("http://"+cfg.Server.HTTPAddr, cfg.Auth.Secret)
	agents, err := c.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	if len(agents) == 0 {
		fmt.Println("no agents registered")
		return nil
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for _, a := range agents {
		if a.Online != nil && *a.Online {
			green.Print("● ")
		} else {
			gray.Print("○ ")
		}
		fmt.Printf("%s", a.Name)
		gray.Printf("  %s  last seen %s\n", a.ID, a.LastSeen.Format(time.RFC3339))
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
