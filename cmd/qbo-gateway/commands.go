// ABOUTME: Operator subcommands: health, tools, calls and token
// ABOUTME: Each loads the same config as serve and prints to stdout

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/qbo-gateway/internal/auth"
	"github.com/2389/qbo-gateway/internal/gateway"
	"github.com/2389/qbo-gateway/internal/store"
)

func runHealth(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("health")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	color.New(color.FgGreen).Print("healthy ")
	fmt.Print(string(body))
	return nil
}

// runTools prints the Markdown operation catalog. It needs no database or credentials.
func runTools(args []string) error {
	fs, configFlag := newFlagSet("tools")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router, err := gateway.NewRouter(cfg, nil, logger)
	if err != nil {
		return err
	}
	return router.WriteCatalog(os.Stdout)
}

func runCalls(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("calls")
	limit := fs.IntP("limit", "n", 100, "number of calls to show (max 1000)")
	tool := fs.String("tool", "", "only show calls to this operation")
	failed := fs.Bool("failed", false, "only show failed calls")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	s, err := gateway.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := store.ToolCallFilter{Limit: *limit}
	if *tool != "" {
		filter.Tool = tool
	}
	if *failed {
		outcome := store.OutcomeError
		filter.Outcome = &outcome
	}

	calls, err := s.ListToolCalls(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing tool calls: %w", err)
	}
	return printCalls(os.Stdout, calls)
}

func printCalls(w io.Writer, calls []store.ToolCall) error {
	if len(calls) == 0 {
		fmt.Fprintln(w, "No tool calls recorded.")
		return nil
	}

	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tDOMAIN\tTENANT\tOUTCOME\tDURATION\tSESSION\tSUBJECT")
	for _, c := range calls {
		outcome := green.Sprint(c.Outcome)
		if c.Outcome == store.OutcomeError {
			outcome = red.Sprintf("%s (%s)", c.Outcome, c.ErrorKind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime),
			c.Tool,
			dash(c.Domain),
			dash(c.Tenant),
			outcome,
			c.DurationMS,
			shortID(c.SessionID),
			dash(c.Subject),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runToken(args []string) error {
	fs, configFlag := newFlagSet("token")
	subject := fs.StringP("subject", "s", "qbo-client", "subject (client name) embedded in the token")
	expires := fs.Duration("expires", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not set: tokens are not needed until it is")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(*subject, *expires)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Token for %q, expires %s\n", *subject, time.Now().Add(*expires).Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}
