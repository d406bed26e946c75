package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/meheroob/stremlit-agentic-ai/internal/api"
	"github.com/meheroob/stremlit-agentic-ai/internal/chunker"
	"github.com/meheroob/stremlit-agentic-ai/internal/config"
	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
	"github.com/meheroob/stremlit-agentic-ai/internal/source"
)

// --- build ---

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the reference corpus in-process",
	Long: `Read every PDF and HTML document under the source prefix, chunk the text,
embed the chunks and replace the reference corpus.

Examples:
  advisor build
  advisor build --prefix reference/2025/
  advisor build --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		if prefix == "" {
			prefix = cfg.Source.Prefix
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := openCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if dryRun {
			return previewBuild(ctx, c.reader, cfg.Ingest, prefix, os.Stdout)
		}

		if err := engine.EnsureReady(ctx, c.engine, cfg.Engine.ChatModel, cfg.Engine.EmbedModel, os.Stderr); err != nil {
			return err
		}
		printStep("Building corpus from %q", prefix)
		stats, err := c.builder.Build(ctx, prefix)
		if err != nil {
			return err
		}
		printSuccess("Corpus rebuilt: %d documents, %d chunks, %d dimensions in %s",
			stats.Documents, stats.Chunks, stats.Dimensions, stats.Duration.Round(time.Millisecond))
		return nil
	},
}

type documentReader interface {
	ReadAll(ctx context.Context, prefix string) ([]source.Document, error)
}

// previewBuild reports what a build would produce without embedding.
func previewBuild(ctx context.Context, r documentReader, cfg config.IngestConfig, prefix string, w io.Writer) error {
	docs, err := r.ReadAll(ctx, prefix)
	if err != nil {
		return err
	}
	chunks, err := chunker.ChunkText(source.JoinPages(docs), cfg.ChunkSize, cfg.Overlap)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Fprintf(w, "  %s (%d pages)\n", d.Name, len(d.Pages))
	}
	fmt.Fprintf(w, "%d documents, %d chunks (size %d, overlap %d)\n", len(docs), len(chunks), cfg.ChunkSize, cfg.Overlap)
	return nil
}

func init() {
	buildCmd.Flags().String("prefix", "", "document prefix to read (default: source.prefix)")
	buildCmd.Flags().Bool("dry-run", false, "read and chunk only; do not embed or replace the corpus")
}

// --- corpus ---

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the reference corpus on the running server",
}

var corpusRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Queue a corpus rebuild on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id, err := queueRebuild(cmd.Context(), client, prefix)
		if err != nil {
			return err
		}
		printSuccess("Queued rebuild job %s", id)
		if !wait {
			return nil
		}

		printStep("Waiting for job %s", id)
		job, err := waitForJob(cmd.Context(), client, id, time.Second)
		if err != nil {
			return err
		}
		if job.Status == "failed" {
			return fmt.Errorf("rebuild failed: %s", job.LastError)
		}
		printSuccess("Rebuild completed")
		return nil
	},
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return printCorpusStats(cmd.Context(), client, os.Stdout)
	},
}

type jobStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

func queueRebuild(ctx context.Context, client *apiClient, prefix string) (string, error) {
	var body any
	if prefix != "" {
		body = map[string]string{"prefix": prefix}
	}
	resp, err := client.post(ctx, "/admin/corpus/rebuild", body)
	if err != nil {
		return "", err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	return result["job_id"], nil
}

// waitForJob polls until the job completes or fails. A job that failed but
// still has attempts left is pending again and keeps being polled.
func waitForJob(ctx context.Context, client *apiClient, id string, interval time.Duration) (jobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		resp, err := client.get(ctx, "/admin/jobs/"+url.PathEscape(id))
		if err != nil {
			return jobStatus{}, err
		}
		var job jobStatus
		if err := decodeJSON(resp, &job); err != nil {
			return jobStatus{}, err
		}
		if job.Status == "completed" || job.Status == "failed" {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printCorpusStats(ctx context.Context, client *apiClient, w io.Writer) error {
	resp, err := client.get(ctx, "/admin/corpus")
	if err != nil {
		return err
	}
	var stats struct {
		Rows      int `json:"rows"`
		LastBuild *struct {
			ID         string `json:"id"`
			Prefix     string `json:"prefix"`
			FinishedAt string `json:"finished_at"`
			Documents  int    `json:"documents"`
			Chunks     int    `json:"chunks"`
			Dimensions int    `json:"dimensions"`
		} `json:"last_build"`
	}
	if err := decodeJSON(resp, &stats); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Chunks:"), stats.Rows)
	if stats.LastBuild == nil {
		fmt.Fprintln(w, "No build recorded.")
		return nil
	}
	b := stats.LastBuild
	fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorBold, "Last build:"), b.FinishedAt, b.ID)
	fmt.Fprintf(w, "  prefix=%q documents=%d chunks=%d dimensions=%d\n", b.Prefix, b.Documents, b.Chunks, b.Dimensions)
	return nil
}

func init() {
	corpusRebuildCmd.Flags().String("prefix", "", "document prefix to read (default: server configuration)")
	corpusRebuildCmd.Flags().Bool("wait", false, "wait for the rebuild to finish")
	corpusCmd.AddCommand(corpusRebuildCmd)
	corpusCmd.AddCommand(corpusStatsCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the reference corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSearch(cmd.Context(), client, os.Stdout, strings.Join(args, " "), topK)
	},
}

func runSearch(ctx context.Context, client *apiClient, w io.Writer, query string, topK int) error {
	path := fmt.Sprintf("/admin/corpus/search?q=%s&top_k=%d", url.QueryEscape(query), topK)
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}

	var body struct {
		Results []struct {
			ChunkID   string  `json:"chunk_id"`
			ChunkText string  `json:"chunk_text"`
			Score     float64 `json:"score"`
		} `json:"results"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return err
	}

	if len(body.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	for i, r := range body.Results {
		fmt.Fprintf(w, "\n%s [chunk %s, score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.ChunkID, r.Score)
		text := []rune(r.ChunkText)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Fprintf(w, "  %s\n", string(text))
	}
	return nil
}

func init() {
	searchCmd.Flags().Int("top-k", 5, "maximum number of results")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant as a customer",
	RunE: func(cmd *cobra.Command, args []string) error {
		customerID, _ := cmd.Flags().GetString("customer")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := &apiClient{
			baseURL:    serverURL(cfg),
			httpClient: &http.Client{Timeout: 2 * time.Minute},
		}
		return chatREPL(cmd.Context(), client, customerID, os.Stdin, os.Stdout)
	},
}

type loginResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Greeting  string `json:"greeting"`
}

type chatTurn struct {
	Domain   string `json:"domain"`
	Answer   string `json:"answer"`
	Fallback bool   `json:"fallback"`
}

// chatREPL logs in as customerID (prompting when empty) and relays lines
// from in until EOF, "exit" or "quit". An expired session returns to the
// CustomerID prompt.
func chatREPL(ctx context.Context, client *apiClient, customerID string, in io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(in)
	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !lines.Scan() {
			return "", false
		}
		return strings.TrimSpace(lines.Text()), true
	}

	for {
		for customerID == "" {
			id, ok := readLine("CustomerID: ")
			if !ok {
				return lines.Err()
			}
			customerID = id
		}

		resp, err := client.post(ctx, "/v1/sessions", map[string]string{"customer_id": customerID})
		if err != nil {
			return err
		}
		var login loginResponse
		if err := decodeJSON(resp, &login); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				fmt.Fprintln(out, apiErr.Message)
				customerID = ""
				continue
			}
			return err
		}

		session := client.withToken(login.Token)
		printReply(out, "", login.Greeting, false)

		expired, err := chatLoop(ctx, session, readLine, out)
		if err != nil || !expired {
			return err
		}
		fmt.Fprintln(out, "Your session has expired. Please enter your CustomerID again.")
		customerID = ""
	}
}

func chatLoop(ctx context.Context, session *apiClient, readLine func(string) (string, bool), out io.Writer) (expired bool, err error) {
	for {
		msg, ok := readLine("you: ")
		if !ok || msg == "exit" || msg == "quit" {
			endSession(ctx, session)
			return false, nil
		}
		if msg == "" {
			continue
		}

		resp, err := session.post(ctx, "/v1/chat", map[string]string{"message": msg})
		if err != nil {
			return false, err
		}
		var turn chatTurn
		if err := decodeJSON(resp, &turn); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) {
				switch {
				case apiErr.Status == http.StatusUnauthorized:
					return true, nil
				case apiErr.Status >= 500:
					printError("%s", apiErr.Message)
					continue
				}
			}
			return false, err
		}
		printReply(out, turn.Domain, turn.Answer, turn.Fallback)
	}
}

func endSession(ctx context.Context, session *apiClient) {
	resp, err := session.delete(ctx, "/v1/sessions/current")
	if err != nil {
		return
	}
	decodeJSON(resp, nil)
}

func init() {
	chatCmd.Flags().String("customer", "", "CustomerID to log in as (prompted when empty)")
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect answered chat turns",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listInteractions(cmd.Context(), client, os.Stdout, limit)
	},
}

func listInteractions(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	resp, err := client.get(ctx, fmt.Sprintf("/admin/interactions?limit=%d", limit))
	if err != nil {
		return err
	}

	var interactions []struct {
		ID         string `json:"id"`
		CreatedAt  string `json:"created_at"`
		CustomerID string `json:"customer_id"`
		Domain     string `json:"domain"`
		Query      string `json:"query"`
		Fallback   bool   `json:"fallback"`
	}
	if err := decodeJSON(resp, &interactions); err != nil {
		return err
	}

	if len(interactions) == 0 {
		fmt.Fprintln(w, "No interactions found.")
		return nil
	}

	for _, ix := range interactions {
		id := ix.ID
		if len(id) > 8 {
			id = id[:8]
		}
		query := []rune(ix.Query)
		if len(query) > 80 {
			query = append(query[:80], []rune("...")...)
		}
		domain := ix.Domain
		if ix.Fallback {
			domain += "*"
		}
		fmt.Fprintf(w, "%s  %s  %-6s %-10s %s\n",
			colorize(colorCyan, id),
			ix.CreatedAt,
			ix.CustomerID,
			domain,
			string(query),
		)
	}
	return nil
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the corpus tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := openCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:     c.store,
			Corpus:    c.corpus,
			Retriever: c.retriever,
		})
		err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio server: %w", err)
		}
		return nil
	},
}
