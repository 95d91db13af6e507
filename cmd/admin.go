package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"interview-room/aggregate"
	"interview-room/config"
	server2 "interview-room/server"
	"interview-room/storage"
)

// withApp wires the same components as the server. The local store under
// data_path is exclusive, so these commands cannot run next to a server that
// uses the same data_path.
func withApp(cfg *config.Config, fn func(ctx context.Context, app *server2.App) error) error {
	ctx, cancel := signal.NotifyContext(server2.SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := server2.NewApp(ctx, cfg)
	if errors.Is(err, storage.ErrStoreLocked) {
		return fmt.Errorf("%w; stop the server or run with a different data_path", err)
	}
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))
	return fn(ctx, app)
}

func login(config *config.Config) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "log in to the analysis backend and store the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("INTERVIEW_PASSWORD")
			}
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				cred, err := app.Login(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", cred.FullName, cred.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password, defaults to $INTERVIEW_PASSWORD")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logout(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				return app.Logout(ctx)
			})
		},
	}
}

func mySessions(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "my-sessions",
		Short: "list the logged-in candidate's sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				views, err := app.Room.MySessions(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tSTATUS\tSCORE\tANSWERS\tSTARTED")
				for _, v := range views {
					score := "-"
					if v.FinalScore != nil {
						score = fmt.Sprintf("%.1f", *v.FinalScore)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", v.SessionID, v.Status, score, v.AnswerCount, v.StartedAt)
				}
				return w.Flush()
			})
		},
	}
}

func roster(config *config.Config) *cobra.Command {
	var query, sortField, sortOrder string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "list candidate sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := aggregate.ParseSortField(sortField)
			if err != nil {
				return err
			}
			order, err := aggregate.ParseSortOrder(sortOrder)
			if err != nil {
				return err
			}
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				if err := app.Roster.Refresh(ctx); err != nil {
					return err
				}
				view := app.Roster.View(query, field, order)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(view)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tNAME\tEMAIL\tSTATUS\tSCORE\tCATEGORY\tANSWERS")
				for _, e := range view.Entries {
					score := "-"
					if e.FinalScore != nil {
						score = fmt.Sprintf("%.1f", *e.FinalScore)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
						e.SessionID, e.CandidateName, e.CandidateEmail, e.Status, score, e.Category, e.AnswerCount)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				mean := "-"
				if view.Summary.MeanScore != nil {
					mean = fmt.Sprintf("%.2f", *view.Summary.MeanScore)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d shown, %d completed, %d recommended, mean score %s\n",
					view.Matched, view.Summary.Total, view.Summary.Completed, view.Summary.Recommended, mean)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by name, email or category")
	cmd.Flags().StringVar(&sortField, "sort", "started_at", "name, email, score, category, status, started_at or answer_count")
	cmd.Flags().StringVar(&sortOrder, "order", "asc", "asc or desc")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the roster view as JSON")
	return cmd
}

func deleteSession(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-session <session-id>",
		Short: "delete a session with its archived results and media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				if err := app.Roster.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func archive(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "list session results archived in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(config, func(ctx context.Context, app *server2.App) error {
				if app.Repo == nil {
					return fmt.Errorf("no result archive configured, set POSTGRESQL_HOST")
				}
				sessions, err := app.Repo.ListSessions(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tNAME\tSTATUS\tSCORE\tANSWERS\tARCHIVED")
				for _, s := range sessions {
					score := "-"
					if s.FinalScore != nil {
						score = fmt.Sprintf("%.1f", *s.FinalScore)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						s.ID, s.CandidateName, s.Status, score, s.AnswerCount, s.ArchivedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}
