package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/careflow/internal/logging"
	"github.com/spetersoncode/careflow/mcp"
	"github.com/spetersoncode/careflow/workflow"
)

// ErrInvalidWorkflow is returned by the validate command when the document
// has violations.
var ErrInvalidWorkflow = errors.New("workflow has violations")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "careflow",
		Short:        "Healthcare workflow composer",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMCPCmd(), newBlocksCmd(), newValidateCmd())
	return root
}

// setup loads the configuration and builds the process logger.
func setup(cmd *cobra.Command) (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}
	log, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		JSON:   cfg.LogJSON,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and SSE server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg, log)
			if err != nil {
				return err
			}
			app, err := NewApp(cfg, c, log)
			if err != nil {
				return err
			}
			if !app.apiConfigured() {
				log.Warn("no API key for provider; model requests will use fallbacks", "provider", cfg.Provider)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, app, log)
		},
	}
	cmd.Flags().String("port", "", "server port (overrides CAREFLOW_PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *Config, app *App, log *slog.Logger) error {
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"provider", cfg.Provider,
		"websocket", "/ws/workflow-chat",
		"agui", "/api/agent/workflow",
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server stopped")
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve registry, validation and decision tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg, log)
			if err != nil {
				return err
			}
			app, err := NewApp(cfg, c, log)
			if err != nil {
				return err
			}
			return mcp.ServeStdio(app.registry, app.evaluator,
				mcp.WithName(serviceName),
				mcp.WithVersion(version),
			)
		},
	}
}

func newBlocksCmd() *cobra.Command {
	var workflowType, schemaFor string
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Print the block vocabulary, or one block type's JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := workflow.DefaultRegistry()
			out := cmd.OutOrStdout()
			if schemaFor != "" {
				schema, err := reg.JSONSchema(workflow.BlockType(schemaFor))
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(schema)
			}
			wt := workflow.Type(workflowType)
			if !wt.Valid() {
				return fmt.Errorf("workflow type must be patient or practice, got %q", workflowType)
			}
			_, err := io.WriteString(out, reg.PromptDoc(wt))
			return err
		},
	}
	cmd.Flags().StringVar(&workflowType, "workflow-type", string(workflow.TypePatient), "patient or practice")
	cmd.Flags().StringVar(&schemaFor, "schema", "", "print the JSON Schema of this block type")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a workflow document (reads stdin when no file or '-' is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var raw json.RawMessage
			if err := json.NewDecoder(r).Decode(&raw); err != nil {
				return fmt.Errorf("decode workflow: %w", err)
			}

			doc, violations := workflow.DefaultRegistry().ValidateJSON(raw)
			out := cmd.OutOrStdout()
			if len(violations) == 0 {
				fmt.Fprintf(out, "ok: %d blocks, %d connections\n", len(doc.Blocks), len(doc.Connections))
				return nil
			}
			for _, v := range violations {
				fmt.Fprintf(out, "%s: %s\n", v.Code, v)
			}
			return fmt.Errorf("%w: %d", ErrInvalidWorkflow, len(violations))
		},
	}
}
