package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/memback/memback"
)

// Script is a sequence of requests replayed against a fresh store.
type Script struct {
	// Description is a short summary of what the script exercises.
	Description string
	// Requests is the ordered list of requests to execute.
	Requests []memback.Request
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Replay a request script against a fresh store",
		Long: `Replay a YAML request script against a fresh in-memory store.

Each request envelope is executed in order and its response is printed as a
JSON line on stdout.

Example:
  memback run ./script.yaml`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(rootOpts, args[0], cmd)
		},
	}
}

func runScript(opts *RootOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	script, err := LoadScript(path)
	if err != nil {
		return err
	}
	logger.Debug("script loaded", "path", path, "requests", len(script.Requests))

	db := memback.Open()
	enc := json.NewEncoder(cmd.OutOrStdout())
	for i, req := range script.Requests {
		res := db.Handle(cmd.Context(), &req)
		logger.Debug("request handled", "index", i, "method", req.Method, "class", req.ClassName, "status", res.Status)
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

// LoadScript loads and parses a request script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, err
	}
	return &script, nil
}
