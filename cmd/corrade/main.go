package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/storage"
	"corrade/internal/storage/repos"
	"corrade/pkg/sdk"
)

// exitError carries the process exit code chosen by a subcommand.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := newRootCommand(os.Stdout)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintln(os.Stderr, ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(config.Default().ExitCodes.Abnormal)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "corrade",
		Short:         "Scripted grid agent driven by key=value commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "Path to config file")

	root.AddCommand(newServerCommand(&cfgPath))
	root.AddCommand(newMCPCommand(&cfgPath))
	root.AddCommand(newCommandCommand())
	root.AddCommand(newConfigCommand(&cfgPath))
	root.AddCommand(newNotificationsCommand(&cfgPath))
	root.AddCommand(newOffersCommand(&cfgPath))
	root.AddCommand(newDBCommand(&cfgPath))
	return root
}

func newCommandCommand() *cobra.Command {
	var (
		baseURL  string
		group    string
		password string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "command key=value...",
		Short: "Send one command to a running agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := sdk.ParseFields(args)
			if err != nil {
				return err
			}
			client := sdk.New(sdk.Config{BaseURL: baseURL, Group: group, Password: password, Timeout: timeout})
			reply, err := client.Command(cmd.Context(), fields)
			if reply != nil {
				printFields(cmd.OutOrStdout(), reply)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Agent command endpoint (default $CORRADE_URL or http://localhost:8080/)")
	cmd.Flags().StringVar(&group, "group", "", "Group name or UUID")
	cmd.Flags().StringVar(&password, "password", "", "Group password")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}

func newConfigCommand(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			groups, err := config.Groups(cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tUUID\tWORKERS\tPERMISSIONS\tNOTIFICATIONS")
			for _, g := range groups {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", g.Name, g.UUID, g.Workers, bits.OnesCount64(uint64(g.Permissions)), bits.OnesCount64(uint64(g.Notifications)))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s\n", *cfgPath)
			return nil
		},
	})
	return cmd
}

func newNotificationsCommand(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Short: "Stored notification registrations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved notification registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *cfgPath, func(ctx context.Context, store *repos.Store) error {
				regs, err := store.ListRegistrations(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "GROUP\tKIND\tURL")
				for _, r := range regs {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Group, r.Kind, r.URL)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func newOffersCommand(cfgPath *string) *cobra.Command {
	var state string
	cmd := &cobra.Command{Use: "offers", Short: "Stored inventory offers"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List inventory offers by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *cfgPath, func(ctx context.Context, store *repos.Store) error {
				offers, err := store.ListOffers(ctx, model.OfferState(state))
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSENDER\tITEM\tTYPE\tSTATE\tRECEIVED")
				for _, o := range offers {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", o.ID, o.SenderName, o.ItemName, o.AssetType, o.State, o.Received.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().StringVar(&state, "state", string(model.OfferPending), "Offer state: pending|accepted|declined")
	cmd.AddCommand(list)
	return cmd
}

func newDBCommand(cfgPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{Use: "db", Short: "Database maintenance"}
	backup := &cobra.Command{
		Use:   "backup",
		Short: "Copy the database file into a backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *cfgPath, func(ctx context.Context, store *repos.Store) error {
				dst, err := storage.Backup(ctx, store.DB, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", dst)
				return nil
			})
		},
	}
	backup.Flags().StringVar(&dir, "dir", "backups", "Backup directory")
	cmd.AddCommand(backup)
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count the rows of every persisted table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *cfgPath, func(ctx context.Context, store *repos.Store) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				tables := make([]string, 0, len(stats))
				for t := range stats {
					tables = append(tables, t)
				}
				sort.Strings(tables)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TABLE\tROWS")
				for _, t := range tables {
					fmt.Fprintf(w, "%s\t%d\n", t, stats[t])
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func withStore(ctx context.Context, cfgPath string, fn func(context.Context, *repos.Store) error) error {
	cfg, err := loadConfigMaybe(cfgPath)
	if err != nil {
		return err
	}
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}
	return fn(ctx, repos.New(db))
}

// loadConfigMaybe reads the file when it exists and falls back to defaults
// otherwise. Offline commands only need the database section, so the
// file is parsed without the startup checks Load applies.
func loadConfigMaybe(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); err == nil {
		return config.Parse(path)
	} else if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	} else {
		return config.Config{}, err
	}
}

func printFields(w io.Writer, fields map[string]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(tw, "%s\t%s\n", k, fields[k])
	}
	_ = tw.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
