// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package request implements the 'apiclient request' command.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/apiclient/internal/commands/shared"
	"github.com/tombee/apiclient/pkg/client"
	apierrors "github.com/tombee/apiclient/pkg/errors"
)

type options struct {
	headers []string
	query   []string
	data    string
	timeout time.Duration
	include bool
}

// Result is the JSON output of a request.
type Result struct {
	shared.JSONResponse
	Method    string              `json:"method"`
	URL       string              `json:"url"`
	Status    int                 `json:"status"`
	Headers   map[string][]string `json:"headers"`
	Body      json.RawMessage     `json:"body,omitempty"`
	Text      string              `json:"text,omitempty"`
	Attempts  int                 `json:"attempts"`
	ElapsedMS int64               `json:"elapsed_ms"`
}

// NewCommand creates the request command.
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "request <METHOD> <path>",
		Short: "Send a request using a configured profile",
		Long: `Send one HTTP request through the profile's full pipeline: authentication,
rate limiting, retries and circuit breaking.

The path is joined to the profile base URL unless it is an absolute http(s) URL.
Use --data @file to read the body from a file, or --data @- for stdin.`,
		Example: `  apiclient request GET /user
  apiclient request POST /repos/o/r/issues --data '{"title":"bug"}'
  apiclient request GET /search -q q=golang -q per_page=5 --profile github`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "Request header as 'Name: value' (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON request body, @file or @- for stdin")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Per-attempt timeout (default: profile timeout)")
	cmd.Flags().BoolVarP(&opts.include, "include", "i", false, "Print the status line and response headers")

	return cmd
}

func run(cmd *cobra.Command, opts *options, method, path string) error {
	reqOpts, err := buildRequestOptions(cmd.InOrStdin(), opts)
	if err != nil {
		return shared.NewConfigError("invalid request", err)
	}

	env, err := shared.BuildEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	resp, err := env.Components.Session.Do(cmd.Context(), method, path, reqOpts...)
	var httpErr *apierrors.HTTPError
	if err != nil && !(errors.As(err, &httpErr) && resp != nil) {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(cmd.OutOrStdout(), "request", err)
		}
		return shared.NewRequestError("request failed", err)
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), toResult(resp)); err != nil {
			return err
		}
	} else {
		printResponse(cmd.OutOrStdout(), resp, opts.include)
	}

	if err != nil {
		return shared.NewRequestError(fmt.Sprintf("%s %s returned %d", resp.Method, path, resp.StatusCode), err)
	}
	return nil
}

func buildRequestOptions(stdin io.Reader, opts *options) ([]client.RequestOption, error) {
	var out []client.RequestOption

	for _, h := range opts.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("header %q: want 'Name: value'", h)
		}
		out = append(out, client.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}

	query := url.Values{}
	for _, q := range opts.query {
		key, value, ok := strings.Cut(q, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("query %q: want key=value", q)
		}
		query.Add(key, value)
	}
	if len(query) > 0 {
		out = append(out, client.WithQuery(query))
	}

	if opts.data != "" {
		body, err := readData(stdin, opts.data)
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("--data is not valid JSON")
		}
		out = append(out, client.WithBody(body, "application/json"))
	}

	if opts.timeout < 0 {
		return nil, fmt.Errorf("--timeout must be positive")
	}
	if opts.timeout > 0 {
		out = append(out, client.WithRequestTimeout(opts.timeout))
	}
	return out, nil
}

func readData(stdin io.Reader, data string) ([]byte, error) {
	switch {
	case data == "@-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return b, nil
	default:
		return []byte(data), nil
	}
}

func toResult(resp *client.Response) Result {
	r := Result{
		JSONResponse: shared.NewJSONResponse("request"),
		Method:       resp.Method,
		URL:          resp.URL,
		Status:       resp.StatusCode,
		Headers:      resp.Header,
		Attempts:     resp.Attempts,
		ElapsedMS:    resp.Elapsed.Milliseconds(),
	}
	r.Success = resp.OK()
	if body := resp.Body(); len(body) > 0 {
		if json.Valid(body) {
			r.Body = body
		} else {
			r.Text = string(body)
		}
	}
	return r
}

func printResponse(w io.Writer, resp *client.Response, include bool) {
	if include {
		fmt.Fprintf(w, "HTTP %d\n", resp.StatusCode)
		names := make([]string, 0, len(resp.Header))
		for name := range resp.Header {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, v := range resp.Header[name] {
				fmt.Fprintf(w, "%s: %s\n", name, v)
			}
		}
		fmt.Fprintln(w)
	}

	body := resp.Body()
	var pretty any
	if json.Unmarshal(body, &pretty) == nil {
		if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			body = out
		}
	}
	w.Write(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		fmt.Fprintln(w)
	}
}
