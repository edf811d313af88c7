// Package cli implements the fetch command, a curl-like client over the request builder.
package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keboola/go-fetch/pkg/client"
	"github.com/keboola/go-fetch/pkg/client/trace"
	"github.com/keboola/go-fetch/pkg/request"
)

// Options of the root command, zero values are replaced by defaults.
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(key string) (string, bool)
	NewSender func(cfg Config, logger *zap.Logger, stderr io.Writer) request.Sender
}

var methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Execute runs the fetch command with the process environment.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCommand(Options{})
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.NewSender == nil {
		opts.NewSender = NewClient
	}

	root := &cobra.Command{
		Use:   "fetch",
		Short: "Send HTTP requests with parameters encoded by the method and the content type.",
		Long: `fetch sends HTTP requests. Parameters of GET, HEAD and OPTIONS requests
are encoded to the query string, parameters of other methods to the body,
as JSON (default), form data or multipart form data.`,
		SilenceUsage: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	initConfigFlags(root.PersistentFlags())

	for _, method := range methods {
		root.AddCommand(newMethodCommand(method, opts))
	}
	return root
}

// NewClient creates the default sender, tracers are enabled by the verbose and dump flags.
func NewClient(cfg Config, logger *zap.Logger, stderr io.Writer) request.Sender {
	c := client.Shared().
		WithUserAgent(cfg.UserAgent).
		WithRetry(cfg.RetryConfig()).
		WithMaxBodySize(cfg.MaxBodySize)
	if transport := cfg.Transport(); transport != nil {
		c = c.WithTransport(transport)
	}
	if cfg.Verbose {
		c = c.AndTrace(trace.ZapTracer(logger))
	}
	if cfg.Dump {
		c = c.AndTrace(trace.DumpTracer(stderr))
	}
	return c
}

func commandName(method string) string {
	return strings.ToLower(method)
}
