package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

type methodFlags struct {
	params      []string
	numbers     []string
	files       []string
	headers     []string
	contentType string
	dryRun      bool
	include     bool
}

func newMethodCommand(method string, opts Options) *cobra.Command {
	f := &methodFlags{}
	cmd := &cobra.Command{
		Use:   commandName(method) + " <url>",
		Short: fmt.Sprintf("Send %s request.", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Flags(), opts.LookupEnv)
			if err != nil {
				return err
			}
			if cfg.Verbose {
				cfg.Logging.Level = "debug"
			}

			logger, err := NewLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			spec, err := f.spec(method, args[0], cfg)
			if err != nil {
				return err
			}

			if f.dryRun {
				return dryRun(cmd.Context(), spec, cmd.OutOrStdout())
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()
			return send(ctx, spec, opts.NewSender(cfg, logger, cmd.ErrOrStderr()), f.include, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.params, "param", "p", nil, `string parameter "key=value", use "key[]=value" to build a list`)
	flags.StringArrayVarP(&f.numbers, "num", "n", nil, `numeric parameter "key=123" or "key=1.5"`)
	flags.StringArrayVarP(&f.files, "file", "f", nil, `file parameter "key=path", a path, "file://", "s3://", "gs://" or "azblob://" URL, implies multipart body`)
	flags.StringArrayVarP(&f.headers, "header", "H", nil, `header "Key: value"`)
	flags.StringVar(&f.contentType, "content-type", "", `Content-Type header, body encoding depends on it (default "application/json")`)
	flags.BoolVar(&f.dryRun, "dry-run", false, "print the encoded request, do not send it")
	flags.BoolVarP(&f.include, "include", "i", false, "print the response status and headers")
	return cmd
}

func (f *methodFlags) spec(method, endpoint string, cfg Config) (request.Spec, error) {
	spec := request.New(method, endpoint).
		WithHeaders(cfg.Headers).
		WithAuth(cfg.Auth)

	for _, raw := range f.headers {
		key, value, err := parseHeader(raw)
		if err != nil {
			return spec, err
		}
		spec = spec.AndHeader(key, value)
	}

	if len(f.files) > 0 && encode.IsBodyless(method) {
		return spec, fmt.Errorf(`file parameters cannot be sent by %s request`, method)
	}

	p, err := parseParams(f.params, f.numbers, f.files)
	if err != nil {
		return spec, err
	}
	spec = spec.WithParamMap(p)

	switch {
	case f.contentType != "":
		spec = spec.WithContentType(f.contentType)
	case len(f.files) > 0:
		spec = spec.WithMultipartBody()
	}
	return spec, nil
}

func dryRun(ctx context.Context, spec request.Spec, w io.Writer) error {
	wireReq, err := spec.Build(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", wireReq.Method, wireReq.URL.String())
	writeHeader(w, wireReq.Header)
	if len(wireReq.Body) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = w.Write(wireReq.Body)
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

func send(ctx context.Context, spec request.Spec, sender request.Sender, include bool, w io.Writer) error {
	result := spec.ExecuteAndWait(ctx, sender)
	if include && result.HasStatus() {
		_, _ = fmt.Fprintf(w, "HTTP %d %s\n", result.StatusCode, http.StatusText(result.StatusCode))
		writeHeader(w, result.Header)
		_, _ = fmt.Fprintln(w)
	}
	if len(result.Body) > 0 {
		_, _ = w.Write(result.Body)
		if !strings.HasSuffix(string(result.Body), "\n") {
			_, _ = fmt.Fprintln(w)
		}
	}
	if result.Err != nil {
		return fmt.Errorf(`request %s "%s" failed: %w`, spec.Method(), spec.Endpoint(), result.Err)
	}
	return nil
}

func writeHeader(w io.Writer, header http.Header) {
	for _, key := range slices.Sorted(maps.Keys(header)) {
		for _, value := range header[key] {
			_, _ = fmt.Fprintf(w, "%s: %s\n", key, value)
		}
	}
}
