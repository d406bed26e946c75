package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meheroob/stremlit-agentic-ai/internal/api"
	"github.com/meheroob/stremlit-agentic-ai/internal/config"
	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
	"github.com/meheroob/stremlit-agentic-ai/internal/ingest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the advisor server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running advisor server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show advisor system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "advisor.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "advisor version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("admin bearer token available", "secrets_file", config.SecretsFilePath())

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only names the other process.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("advisor is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("advisor is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing resources: %v\n", err)
		}
	}()

	if err := engine.EnsureReady(ctx, c.engine, cfg.Engine.ChatModel, cfg.Engine.EmbedModel, os.Stderr); err != nil {
		return err
	}

	stack, err := c.openAssistant(ctx)
	if err != nil {
		return err
	}

	if n, err := c.corpus.Count(ctx); err == nil && n == 0 {
		printWarning("reference corpus is empty; run `advisor build` or `advisor corpus rebuild`")
	}

	chatHandler := api.NewChatHandler(api.ChatDeps{
		Customers: stack.directory,
		Sessions:  stack.sessions,
		Assistant: stack.assistant,
	})
	adminHandler := api.NewAdminHandler(api.AdminDeps{
		Store:    c.store,
		Corpus:   c.corpus,
		Searcher: c.retriever,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(chatHandler, adminHandler),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := ingest.NewWorker(c.store, c.builder, cfg.Ingest.PollInterval)
	go worker.Run(ctx)
	go stack.sessions.Run(ctx, cfg.Session.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "advisor listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("advisor is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop advisor (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to advisor (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	base := serverURL(cfg)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	eng, err := engine.Detect(engine.DetectConfig{Backend: cfg.Engine.Backend, BaseURL: cfg.Engine.BaseURL, APIKey: cfg.Engine.APIKey})
	if err == nil && eng.IsRunning(context.Background()) {
		printStatus("Engine", "%s running at %s", cfg.Engine.Backend, cfg.Engine.BaseURL)
	} else {
		printStatus("Engine", "%s not reachable at %s", cfg.Engine.Backend, cfg.Engine.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.Engine.ChatModel)
	printStatus("Embed model", "%s", cfg.Engine.EmbedModel)
	if cfg.Generation.Backend == "openrouter" {
		printStatus("Generation", "openrouter (%s)", cfg.Generation.OpenRouterModel)
	} else {
		printStatus("Generation", "engine (%s)", cfg.Engine.ChatModel)
	}

	apiToken, tokenErr := config.GetAPIToken()
	if tokenErr == nil && running {
		if corpusResp, err := apiGet(client, base+"/admin/corpus", apiToken); err == nil {
			var stats struct {
				Rows      int `json:"rows"`
				LastBuild *struct {
					FinishedAt string `json:"finished_at"`
				} `json:"last_build"`
			}
			if json.NewDecoder(corpusResp.Body).Decode(&stats) == nil {
				printStatus("Corpus", "%d chunks", stats.Rows)
				if stats.LastBuild != nil {
					printStatus("Last build", "%s", stats.LastBuild.FinishedAt)
				}
			}
			corpusResp.Body.Close()
		}
		if interResp, err := apiGet(client, base+"/admin/interactions?limit=100", apiToken); err == nil {
			var interactions []json.RawMessage
			if json.NewDecoder(interResp.Body).Decode(&interactions) == nil {
				printStatus("Interactions", "%s", countLabel(len(interactions), 100))
			}
			interResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
