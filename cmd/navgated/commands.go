package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/config"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/services/manager"
	"github.com/haukened/navgate/internal/navgate/services/matcher"
)

// cli carries what every command needs; loadConfig is replaceable in tests.
type cli struct {
	loadConfig func() (*config.AppConfig, error)
}

func newRootCmd() *cobra.Command {
	c := &cli{loadConfig: config.Load}
	return c.rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Confirm navigations to unknown domains before they load",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(
		c.serveCmd(),
		c.checkCmd(),
		c.whitelistCmd(),
		c.countryCmd(),
		c.toggleCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.assessCmd(),
	)
	return root
}

type runFunc func(cmd *cobra.Command, app *Application, args []string) error

// run loads the configuration, builds the application for one command and
// releases it afterwards.
func (c *cli) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := c.loadConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
			return fmt.Errorf("logging configuration error: %w", err)
		}
		app, err := buildApplication(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := app.Close(); cerr != nil {
				log.Warn(map[string]any{"error": cerr}, "Error releasing resources")
			}
		}()
		return fn(cmd, app, args)
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the extension and management API until interrupted",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, app *Application, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info(map[string]any{
				"version":   version,
				"env":       app.config.Env,
				"log_level": app.config.LogLevel,
				"listen":    app.config.Listen,
			}, "Starting navigation gate")

			if err := app.Run(ctx); err != nil {
				return err
			}
			log.Info(nil, "Navigation gate stopped gracefully")
			return nil
		}),
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Report whether a URL's host is whitelisted",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
			host := matcher.HostnameFromURL(args[0])
			if host == "" {
				return fmt.Errorf("no hostname in %q", args[0])
			}
			s := app.manager.Settings(cmd.Context())
			out := cmd.OutOrStdout()
			if app.repos.whitelist.For(s.Whitelist).Contains(host) {
				fmt.Fprintf(out, "%s: whitelisted\n", host)
			} else {
				fmt.Fprintf(out, "%s: not whitelisted\n", host)
			}
			if !s.EnablePreemptiveChecks {
				fmt.Fprintln(out, "preemptive checks are disabled")
			}
			return nil
		}),
	}
}

func (c *cli) whitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "whitelist",
		Short:   "Manage whitelisted domains",
		Aliases: []string{"wl"},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Short:   "List whitelisted domains",
			Aliases: []string{"ls"},
			Args:    cobra.NoArgs,
			RunE: c.run(func(cmd *cobra.Command, app *Application, _ []string) error {
				for _, e := range app.manager.ListWhitelist(cmd.Context()) {
					fmt.Fprintln(cmd.OutOrStdout(), e)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add <domain>",
			Short: "Whitelist a domain or *.wildcard",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
				entry, err := app.manager.AddDomain(cmd.Context(), args[0])
				if errors.Is(err, manager.ErrAlreadyWhitelisted) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already whitelisted\n", entry)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", entry)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "load <file>",
			Short: "Whitelist every domain in a plain or hosts-style list file",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				entries, err := manager.ParseDomainList(f, log.GetLogger())
				if err != nil {
					return err
				}
				added, err := app.manager.AddDomains(cmd.Context(), entries)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "read %d entries, added %d\n", len(entries), added)
				return nil
			}),
		},
		&cobra.Command{
			Use:     "remove <entry>",
			Short:   "Remove a whitelist entry",
			Aliases: []string{"rm"},
			Args:    cobra.ExactArgs(1),
			RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
				removed, err := app.manager.RemoveDomain(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not whitelisted", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func (c *cli) countryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "country",
		Short: "Manage blocked countries",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Short:   "List blocked countries",
			Aliases: []string{"ls"},
			Args:    cobra.NoArgs,
			RunE: c.run(func(cmd *cobra.Command, app *Application, _ []string) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CODE\tNAME")
				for _, rec := range app.manager.ListBlockedCountries(cmd.Context()) {
					fmt.Fprintf(w, "%s\t%s\n", rec.Code, rec.Name)
				}
				return w.Flush()
			}),
		},
		&cobra.Command{
			Use:   "block <code> [name...]",
			Short: "Block a country by ISO code",
			Args:  cobra.MinimumNArgs(1),
			RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
				rec := domain.CountryRecord{Code: args[0], Name: strings.Join(args[1:], " ")}
				added, err := app.manager.BlockCountry(cmd.Context(), rec)
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already blocked\n", strings.ToUpper(args[0]))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blocked %s\n", strings.ToUpper(args[0]))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "unblock <code>",
			Short: "Unblock a country",
			Args:  cobra.ExactArgs(1),
			RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
				removed, err := app.manager.UnblockCountry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not blocked", strings.ToUpper(args[0]))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", strings.ToUpper(args[0]))
				return nil
			}),
		},
	)
	return cmd
}

// parseSwitch accepts on/off and their usual spellings.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "enable", "enabled":
		return true, nil
	case "off", "false", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func (c *cli) toggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Switch interception or country blocking on or off",
	}
	sub := func(use, short string, set func(*manager.Manager, context.Context, bool) error) *cobra.Command {
		return &cobra.Command{
			Use:       use + " on|off",
			Short:     short,
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
				enabled, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				if err := set(app.manager, cmd.Context(), enabled); err != nil {
					return err
				}
				state := "off"
				if enabled {
					state = "on"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", use, state)
				return nil
			}),
		}
	}
	cmd.AddCommand(
		sub("preemptive", "Switch navigation interception", (*manager.Manager).SetPreemptiveChecks),
		sub("country", "Switch geolocation country blocking", (*manager.Manager).SetCountryBlock),
	)
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whitelist and blocked countries to a dated JSON file",
		Args:  cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, app *Application, _ []string) error {
			path, err := app.manager.ExportToFile(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the export file into")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge an export file into the stored settings",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := app.manager.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d new domains and %d new countries\n",
				res.AddedDomains, res.AddedCountries)
			return nil
		}),
	}
}

func (c *cli) assessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assess <url>",
		Short: "Look up where a URL is hosted and classify its risk",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, app *Application, args []string) error {
			a := app.assessor.Assess(cmd.Context(), args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		}),
	}
}
