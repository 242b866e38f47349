package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tobert/microdash/internal/backend"
	"github.com/tobert/microdash/internal/dashboard"
	"github.com/tobert/microdash/internal/mcpserver"
	"github.com/tobert/microdash/internal/viz"
)

// ServicesCommand lists registered services.
func ServicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "services",
		Usage: "List registered services and their node counts",
		Flags: append(commonFlags(),
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a chart"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			return runServices(ctx, cmd.Root().Writer, client, cmd.Bool("json"))
		},
	}
}

func runServices(ctx context.Context, w io.Writer, client backend.Client, asJSON bool) error {
	list, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list services: %w", err)
	}
	summaries := dashboard.Summarize(list)

	if asJSON {
		return printJSON(w, summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No services registered.")
		return nil
	}
	fmt.Fprint(w, viz.Services(summaries, 0))
	return nil
}

// TracesCommand prints one page of a service's reconstructed traces.
func TracesCommand() *cli.Command {
	return &cli.Command{
		Name:      "traces",
		Usage:     "Show a service's traces as ASCII timelines",
		ArgsUsage: "<service>",
		Flags: append(commonFlags(),
			&cli.IntFlag{Name: "page", Usage: "Page index, 0-based"},
			&cli.IntFlag{Name: "size", Usage: "Traces per page (default 10)"},
			&cli.IntFlag{Name: "width", Usage: "Line width", Value: 100},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name, err := serviceArg(cmd)
			if err != nil {
				return err
			}
			cfg, client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			size := cmd.Int("size")
			if size <= 0 {
				size = cfg.PageSize
			}
			return runTraces(ctx, cmd.Root().Writer, client, name, cmd.Int("page"), size, cmd.Int("width"))
		},
	}
}

func runTraces(ctx context.Context, w io.Writer, client backend.Client, name string, page, size, width int) error {
	view := dashboard.NewServiceView(client, name, dashboard.Options{PageSize: size})
	if err := view.RefreshTraces(ctx); err != nil {
		return err
	}
	view.SetPage(page)
	st := view.Snapshot()

	if st.TraceCount == 0 {
		fmt.Fprintf(w, "No traces for %s.\n", name)
		return nil
	}
	fmt.Fprintf(w, "%s: %d traces, %d spans (page %d of %d)\n\n",
		name, st.TraceCount, st.SpanCount, st.Page+1, st.PageCount)
	fmt.Fprint(w, viz.Timelines(st.Traces, width))
	return nil
}

// StatsCommand prints the latest debug stats of a service.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show the latest stats of every node of a service",
		ArgsUsage: "<service>",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name, err := serviceArg(cmd)
			if err != nil {
				return err
			}
			cfg, client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			window, _ := cfg.Window()
			return runStats(ctx, cmd.Root().Writer, client, name, dashboard.Options{Window: window})
		},
	}
}

func runStats(ctx context.Context, w io.Writer, client backend.Client, name string, opts dashboard.Options) error {
	view := dashboard.NewServiceView(client, name, opts)
	if err := view.RefreshStats(ctx); err != nil {
		return err
	}
	text := viz.LatestMetrics(view.Snapshot().Series)
	if text == "" {
		fmt.Fprintf(w, "No recent stats for %s.\n", name)
		return nil
	}
	fmt.Fprint(w, text)
	return nil
}

// CallCommand invokes a service endpoint through the platform.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Call a service endpoint with a JSON request",
		ArgsUsage: "<service> <endpoint> [request-json | -]",
		Description: `Sends the request through the platform and prints the response.
The request defaults to {}; "-" reads it from stdin.`,
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "address", Usage: "Call a specific node address"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() < 2 {
				return fmt.Errorf("usage: %s call <service> <endpoint> [request-json | -]", cmd.Root().Name)
			}
			payload := args.Get(2)
			if payload == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read request from stdin: %w", err)
				}
				payload = string(data)
			}

			_, client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			return runCall(ctx, cmd.Root().Writer, client, backend.CallRequest{
				Service:  args.Get(0),
				Endpoint: args.Get(1),
				Address:  cmd.String("address"),
			}, payload)
		},
	}
}

func runCall(ctx context.Context, w io.Writer, client backend.Client, req backend.CallRequest, payload string) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		payload = "{}"
	}
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("request is not valid JSON")
	}
	req.Request = json.RawMessage(payload)

	resp, err := client.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp, "", "  "); err != nil {
		// Not JSON; print as is
		out.Reset()
		out.Write(resp)
	}
	fmt.Fprintln(w, strings.TrimRight(out.String(), "\n"))
	return nil
}

// MCPCommand serves the dashboard tools over MCP on stdio.
func MCPCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run an MCP server on stdio exposing the dashboard as tools",
		Description: `Tools: list_services, get_service_logs, get_service_stats,
get_service_traces, call_endpoint. Logs go to stderr; stdout carries MCP.`,
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, client, err := clientFromCommand(cmd)
			if err != nil {
				return err
			}
			window, _ := cfg.Window()
			srv, err := mcpserver.NewServer(client, mcpserver.Options{
				Window:   window,
				PageSize: cfg.PageSize,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}

func serviceArg(cmd *cli.Command) (string, error) {
	name := cmd.Args().First()
	if name == "" {
		return "", fmt.Errorf("usage: %s %s <service>", cmd.Root().Name, cmd.Name)
	}
	return name, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
