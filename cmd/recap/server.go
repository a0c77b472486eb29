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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/recap/internal/api"
	"github.com/kalambet/recap/internal/config"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/report"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/slack"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/summarize"
	"github.com/kalambet/recap/internal/syncer"
	"github.com/kalambet/recap/internal/workflow"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the recap server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running recap server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recap system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "recap.pid")
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
	fmt.Fprintf(os.Stderr, "recap version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	log := slog.Default()

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("recap is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("recap is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	slackClient := slack.New(cfg.Slack.BotToken)
	if !slackClient.Configured() {
		log.Warn("Slack bot token not configured, sync and delivery are disabled")
	}
	summarizer := summarize.New(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	if !summarizer.Configured() {
		log.Warn("OpenAI API key not configured, summary generation is disabled")
	}
	renderer := report.New(cfg.Storage.DataDir)

	sync := syncer.New(slackClient, store, log)
	orch := workflow.New(slackClient, sync, summarizer, renderer, store, log)
	dispatcher := pipeline.New(store, slackClient, slackClient, orch, sync, log)

	sched, err := schedule.New(orch, store, []schedule.Job{
		{Kind: "EOD", Cron: cfg.Schedule.EODCron, Enabled: cfg.Schedule.EODEnabled},
		{Kind: "EOW", Cron: cfg.Schedule.EOWCron, Enabled: cfg.Schedule.EOWEnabled},
	}, log)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Store:         store,
		Slack:         slackClient,
		Sync:          sync,
		Workflows:     orch,
		Events:        dispatcher,
		Summarizer:    summarizer,
		SigningSecret: cfg.Slack.SigningSecret,
		Token:         cfg.Server.APIToken,
		Log:           log,
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Sync:      sync,
		Workflows: orch,
	})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpHTTP := server.NewStreamableHTTPServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "recap listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("MCP server started", "addr", mcpAddr)
		if err := mcpHTTP.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
			log.Warn("MCP shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("recap is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop recap (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to recap (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "degraded (HTTP %d)", resp.StatusCode)
		}

		var health struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
			Messages   int               `json:"messages"`
			Model      string            `json:"model"`
		}
		if json.NewDecoder(resp.Body).Decode(&health) == nil {
			for _, c := range []struct{ key, label string }{
				{"store", "Storage"},
				{"slack", "Slack"},
				{"summarizer", "Summarizer"},
			} {
				if state, ok := health.Components[c.key]; ok {
					printStatus(c.label, "%s", state)
				}
			}
			printStatus("Messages", "%d", health.Messages)
			if health.Model != "" {
				printStatus("Model", "%s", health.Model)
			}
		}
	}

	printStatus("MCP port", "%d", cfg.Server.MCPPort)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
