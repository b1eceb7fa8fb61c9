// Package cli implements the operator's command line for answering diagram
// requests.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kre8/diagram-relay/internal/db"
	"github.com/kre8/diagram-relay/internal/fulfillment"
	"github.com/kre8/diagram-relay/internal/model"
	"github.com/kre8/diagram-relay/internal/notify"
	"github.com/kre8/diagram-relay/internal/repository"
	"github.com/spf13/cobra"
)

// Options holds the persistent flags shared by every command.
type Options struct {
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
}

// Opener builds the fulfillment service for a command run. The returned
// closer releases whatever the service holds.
type Opener func(ctx context.Context, opts *Options) (*fulfillment.Service, io.Closer, error)

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i].Close())
	}
	return errors.Join(errs...)
}

// OpenStore opens the SQLite store named by opts and, when a Redis address is
// set, publishes submissions to the change feed.
func OpenStore(ctx context.Context, opts *Options) (*fulfillment.Service, io.Closer, error) {
	conn, err := db.Open(opts.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cs := closers{conn}

	var svcOpts []fulfillment.Option
	if opts.RedisAddr != "" {
		feed := notify.NewRedis(opts.RedisAddr, opts.RedisPassword, 0, notify.WithChannel(opts.RedisChannel))
		if err := feed.Ping(ctx); err != nil {
			// Watchers still find the response by polling.
			fmt.Fprintln(os.Stderr, hintStyle.Render(fmt.Sprintf("change feed unavailable: %v", err)))
			feed.Close()
		} else {
			cs = append(cs, feed)
			svcOpts = append(svcOpts, fulfillment.WithPublisher(feed))
		}
	}

	return fulfillment.NewService(repository.NewRequestRepository(conn), svcOpts...), cs, nil
}

type app struct {
	opts   Options
	open   Opener
	svc    *fulfillment.Service
	closer io.Closer
}

func (a *app) connect(cmd *cobra.Command, _ []string) error {
	svc, closer, err := a.open(cmd.Context(), &a.opts)
	if err != nil {
		return err
	}
	a.svc = svc
	a.closer = closer
	return nil
}

func (a *app) disconnect(*cobra.Command, []string) error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// NewRootCmd builds the respond command tree. open is called once per run,
// before any subcommand touches the store.
func NewRootCmd(open Opener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "respond [request_id [diagram_code]]",
		Short: "Answer diagram requests from the web UI",
		Long: `respond lists pending diagram requests, shows one request, or records the
diagram code that answers it. Connected browsers receive the code within one
poll interval.`,
		Args:               cobra.MaximumNArgs(2),
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.connect,
		PersistentPostRunE: a.disconnect,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0:
				return a.list(cmd)
			case 1:
				return a.show(cmd, args[0])
			default:
				return a.submit(cmd, args[0], args[1])
			}
		},
	}

	root.PersistentFlags().StringVar(&a.opts.DBPath, "db", envOr("DB_PATH", "data/diagrams.db"), "Path to the SQLite database")
	root.PersistentFlags().StringVar(&a.opts.RedisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for response signals (empty disables)")
	root.PersistentFlags().StringVar(&a.opts.RedisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	root.PersistentFlags().StringVar(&a.opts.RedisChannel, "redis-channel", envOr("REDIS_CHANNEL", notify.DefaultChannel), "Redis channel for response signals")

	root.AddCommand(
		a.listCmd(),
		a.showCmd(),
		a.latestCmd(),
		a.claimCmd(),
		a.submitCmd(),
		a.purgeCmd(),
		a.statsCmd(),
	)

	return root
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending requests, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.list(cmd)
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <request_id>",
		Short: "Show a request that still needs an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.show(cmd, args[0])
		},
	}
}

func (a *app) latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the newest pending request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := a.svc.LatestPending(cmd.Context())
			if err != nil {
				return err
			}
			if req == nil {
				success(cmd.OutOrStdout(), "No pending requests")
				return nil
			}
			printRequestDetail(cmd.OutOrStdout(), req)
			return nil
		},
	}
}

func (a *app) claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <request_id>",
		Short: "Mark a request as being worked on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req, err := a.svc.Claim(cmd.Context(), id)
			if err != nil {
				return describe(id, err)
			}
			success(cmd.OutOrStdout(), "Request #%d is %s", id, req.Status)
			return nil
		},
	}
}

func (a *app) submitCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit <request_id> [diagram_code|-]",
		Short: "Record the diagram code for a request",
		Long: `Record the diagram code for a request. The code is taken from the second
argument, from --file, or from standard input when the argument is "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(cmd, args[1:], file)
			if err != nil {
				return err
			}
			return a.submit(cmd, args[0], code)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read diagram code from a file")
	return cmd
}

func (a *app) purgeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete requests and responses older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.svc.Purge(cmd.Context(), days)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Purged %d requests and %d responses older than %d days",
				result.Requests, result.Responses, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", model.DefaultRetentionDays, "Retention horizon in days")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count requests by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (a *app) list(cmd *cobra.Command) error {
	reqs, err := a.svc.ListPending(cmd.Context())
	if err != nil {
		return err
	}
	printPendingList(cmd.OutOrStdout(), reqs)
	return nil
}

func (a *app) show(cmd *cobra.Command, arg string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	req, err := a.svc.GetOutstanding(cmd.Context(), id)
	if err != nil {
		return describe(id, err)
	}
	printRequestDetail(cmd.OutOrStdout(), req)
	return nil
}

func (a *app) submit(cmd *cobra.Command, arg, code string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	if _, err := a.svc.Submit(cmd.Context(), id, code); err != nil {
		return describe(id, err)
	}
	out := cmd.OutOrStdout()
	success(out, "Response added for request #%d", id)
	success(out, "Web UI will receive the diagram code")
	return nil
}

func readCode(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("pass diagram code as an argument or with --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	case len(args) == 0 || args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		return args[0], nil
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid request id %q", arg)
	}
	return id, nil
}

func describe(id int64, err error) error {
	switch {
	case errors.Is(err, model.ErrRequestNotFound):
		return fmt.Errorf("request #%d not found", id)
	case errors.Is(err, model.ErrRequestCompleted):
		return fmt.Errorf("request #%d already processed", id)
	default:
		return err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
