package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexlup06-authgate/tenantgate-go/tenant"
	"github.com/alexlup06-authgate/tenantgate-go/tenantgate"
)

const programName = "tenantctl"

type config struct {
	tenantsFile      string
	tenantID         string
	accessToken      string
	refreshToken     string
	timeout          time.Duration
	logLevel         string
	proactiveRefresh bool
}

// app holds what the subcommands share once flags are parsed.
type app struct {
	cfg    config
	stdout io.Writer
	stderr io.Writer

	logger   *slog.Logger
	table    *tenant.Table
	resolver *tenant.Resolver
	client   *tenantgate.Client
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           programName,
		Short:         "Tenant-aware authenticated HTTP client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	bindOptions(newViper(programName), root, []opt{
		newOpt(&a.cfg.tenantsFile, "tenants", "", "path to the YAML tenant table"),
		newOpt(&a.cfg.tenantID, "tenant", tenant.DefaultIDFromEnv(), "tenant id to address"),
		newOpt(&a.cfg.accessToken, "access-token", "", "bearer access token"),
		newOpt(&a.cfg.refreshToken, "refresh-token", "", "refresh token used when the access token is rejected"),
		newOpt(&a.cfg.timeout, "timeout", time.Duration(0), "per-request timeout overriding the tenant's"),
		newOpt(&a.cfg.logLevel, "log-level", "warn", "log level: debug, info, warn or error"),
		newOpt(&a.cfg.proactiveRefresh, "proactive-refresh", false, "refresh JWT access tokens shortly before they expire"),
	})

	root.AddCommand(
		a.requestCommand(http.MethodGet, false),
		a.requestCommand(http.MethodPost, true),
		a.requestCommand(http.MethodPut, true),
		a.requestCommand(http.MethodPatch, true),
		a.requestCommand(http.MethodDelete, false),
		a.tenantsCommand(),
		a.refreshCommand(),
	)

	return root
}

func (a *app) setup() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.cfg.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.cfg.logLevel, err)
	}
	a.logger = slog.New(slog.NewJSONHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	var src tenant.Source
	if a.cfg.tenantsFile != "" {
		table, err := tenant.LoadTable(a.cfg.tenantsFile)
		if err != nil {
			return err
		}
		a.table = table
		src = table
	}

	a.resolver = tenant.NewResolver(src, tenant.WithLogger(a.logger))
	a.resolver.LoadTenant(a.cfg.tenantID)

	opts := []tenantgate.ClientOption{tenantgate.WithLogger(a.logger)}
	if a.cfg.proactiveRefresh {
		opts = append(opts, tenantgate.WithProactiveRefresh())
	}
	a.client = tenantgate.NewClient(a.resolver, opts...)

	if a.cfg.accessToken != "" || a.cfg.refreshToken != "" {
		a.client.SetCredentials(tenantgate.Credentials{
			AccessToken:  a.cfg.accessToken,
			RefreshToken: a.cfg.refreshToken,
		})
	}

	return nil
}

func (a *app) teardown() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *app) requestCommand(method string, withBody bool) *cobra.Command {
	use, args := "PATH", cobra.ExactArgs(1)
	if withBody {
		use, args = "PATH [BODY]", cobra.RangeArgs(1, 2)
	}

	return &cobra.Command{
		Use:   fmt.Sprintf("%s %s", strings.ToLower(method), use),
		Short: fmt.Sprintf("Send a %s request to the current tenant", method),
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return errors.New("body is not valid JSON")
				}
				body = json.RawMessage(args[1])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var reqOpts []tenantgate.RequestOption
			if a.cfg.timeout > 0 {
				reqOpts = append(reqOpts, tenantgate.WithTimeout(a.cfg.timeout))
			}

			var out json.RawMessage
			if err := a.client.Do(ctx, method, args[0], body, &out, reqOpts...); err != nil {
				return err
			}
			return a.printJSON(out)
		},
	}
}

func (a *app) tenantsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tenants",
		Short: "List configured tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current := a.resolver.CurrentTenant()

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tENDPOINT\tCACHING\tCURRENT")

			if a.table == nil {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", current.ID, current.Name, current.Endpoint, current.CachingEnabled, "*")
				return tw.Flush()
			}

			for _, id := range a.table.IDs() {
				d, _ := a.table.Lookup(id)
				mark := ""
				if d.ID == current.ID {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", d.ID, d.Name, d.Endpoint, d.CachingEnabled, mark)
			}
			return tw.Flush()
		},
	}
}

func (a *app) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, ok := a.client.RefreshAccessToken(cmd.Context())
			if !ok {
				return errors.New("refresh failed")
			}
			_, err := fmt.Fprintln(a.stdout, token)
			return err
		},
	}
}

func (a *app) printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')

	_, err := buf.WriteTo(a.stdout)
	return err
}
