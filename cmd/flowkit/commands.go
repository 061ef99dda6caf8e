package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"flowkit/internal/mcp"
	"flowkit/internal/orchestrator"
)

var errRunFailed = errors.New("flow run did not succeed")

func stdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve the MCP tools over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			a.logger.Info("Serving MCP over stdio", "version", version)
			return mcp.NewServer(a.flows, version, a.logger).ServeStdio()
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: "Run one flow and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			contextFile, _ := cmd.Flags().GetString("context")
			rawVars, _ := cmd.Flags().GetStringArray("var")

			vars, err := parseVars(rawVars)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.flows.Execute(cmd.Context(), orchestrator.RunInput{
				FlowName:        args[0],
				TargetModel:     model,
				ContextFilePath: contextFile,
				Variables:       vars,
			})
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().String("model", "", "Target model (default: llm.default_model, then dummy)")
	cmd.Flags().String("context", "", "File inside flows.context_dir whose contents are injected as {{context}}")
	cmd.Flags().StringArray("var", nil, "Template variable as key=value (repeatable)")
	return cmd
}

func flowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List available flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			return writeJSON(cmd.OutOrStdout(), a.flows.ListFlows(cmd.Context()))
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the run history schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DB.URL == "" {
				return errors.New("db.url is not set")
			}

			// openStore creates the schema before returning.
			_, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			closeStore()
			logger.Info("Run history schema is up to date")
			return nil
		},
	}
}

// parseVars turns key=value pairs into a variable map. The value may itself
// contain '='.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
