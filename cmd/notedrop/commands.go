package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/NoteDrop/internal/app"
	"github.com/dharsanguruparan/NoteDrop/internal/client"
	"github.com/dharsanguruparan/NoteDrop/internal/config"
	"github.com/dharsanguruparan/NoteDrop/internal/feed"
	"github.com/dharsanguruparan/NoteDrop/internal/model"
	"github.com/dharsanguruparan/NoteDrop/internal/queue"
)

func newLoginCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session and remember it",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, c, err := session()
			if err != nil {
				return err
			}
			sess, err := c.Login(cmd.Context(), name, email)
			if err != nil {
				return err
			}
			st.Token, st.Name, st.Email = sess.Token, name, strings.ToLower(strings.TrimSpace(email))
			if err := st.Save(statePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", st.Email, sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name shown on uploads")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newListCmd() *cobra.Command {
	var filter feed.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the feed, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, c, err := session()
			if err != nil {
				return err
			}
			all, err := c.Feed(cmd.Context())
			if err != nil {
				return err
			}
			printNotes(cmd.OutOrStdout(), feed.Apply(all, filter), st.Email)
			return nil
		},
	}
	cmd.Flags().IntVar(&filter.Year, "year", 0, "Only notes for this year (1-4)")
	cmd.Flags().IntVar(&filter.Semester, "semester", 0, "Only notes for this semester (1-8)")
	cmd.Flags().StringVar(&filter.Subject, "subject", "", "Only subjects containing this text")
	return cmd
}

func printNotes(w io.Writer, notes []*model.Note, me string) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "no notes")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tYEAR\tSEM\tSUBJECT\tBY\tLIKES\tUPLOADED")
	for _, n := range notes {
		likes := fmt.Sprint(n.Likes)
		if me != "" && n.LikedByEmail(me) {
			likes += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			n.ID, n.FileName, n.Year, n.Semester, n.Subject, n.UploadedBy, likes,
			n.UploadedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func newUploadCmd() *cobra.Command {
	var params client.UploadParams
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := feed.CheckClassification(params.Year, params.Semester, params.Subject); err != nil {
				return err
			}
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if err := feed.CheckFile(filepath.Base(path), info.Size(), allowedExts, maxFileBytes); err != nil {
					return err
				}
			}
			st, c, err := authed()
			if err != nil {
				return err
			}
			if params.UploadedBy == "" {
				params.UploadedBy = st.Name
			}
			params.Paths = args
			created, err := c.Upload(cmd.Context(), params)
			if err != nil {
				return err
			}
			for _, n := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s\n", n.FileName, n.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&params.Year, "year", 0, "Year (1-4)")
	cmd.Flags().IntVar(&params.Semester, "semester", 0, "Semester; must belong to the year")
	cmd.Flags().StringVar(&params.Subject, "subject", "", "Subject")
	cmd.Flags().StringVar(&params.Description, "description", "", "Optional description")
	cmd.Flags().StringVar(&params.UploadedBy, "as", "", "Display name (defaults to the login name)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("semester")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newLikeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "like ID",
		Short: "Like a note, or unlike it if already liked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, c, err := authed()
			if err != nil {
				return err
			}
			res, err := c.ToggleLike(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			verb := "unliked"
			for _, e := range res.LikedBy {
				if e == st.Email {
					verb = "liked"
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d likes)\n", verb, res.Likes)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of your uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := authed()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview ID",
		Short: "Print the text of a PDF note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := session()
			if err != nil {
				return err
			}
			p, err := c.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), p.Text)
			if p.Truncated {
				fmt.Fprintf(cmd.ErrOrStderr(), "(preview truncated; document has %d pages)\n", p.Pages)
			}
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download ID",
		Short: "Save a note's file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := session()
			if err != nil {
				return err
			}
			tmp, err := os.CreateTemp(".", ".notedrop-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())
			name, err := c.Download(cmd.Context(), args[0], tmp)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			dest := output
			if dest == "" {
				dest = filepath.Base(name)
			}
			if dest == "" || dest == "." || dest == string(filepath.Separator) {
				dest = args[0]
			}
			if err := os.Rename(tmp.Name(), dest); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "saved", dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (defaults to the original file name)")
	return cmd
}

func newSemestersCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "semesters",
		Short: "List the semesters that belong to a year",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := feed.SemesterOptions(year)
			if opts == nil {
				return fmt.Errorf("year must be between %d and %d", model.MinYear, model.MaxYear)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Trim(fmt.Sprint(opts), "[]"))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year (1-4)")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

// newSweepCmd runs against the server's own configuration (NOTEDROP_* env),
// not the saved client state.
func newSweepCmd() *cobra.Command {
	var enqueue bool
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete blobs no note references (server-side)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if grace <= 0 {
				grace = cfg.SweepGrace
			}
			if enqueue {
				qc := asynq.NewClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
				defer qc.Close()
				id, err := queue.EnqueueSweep(cmd.Context(), qc, queue.SweepPayload{Grace: grace})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "enqueued sweep task", id)
				return nil
			}
			if err := app.CheckSweepable(cfg); err != nil {
				return err
			}
			logger := config.SetupLogger(cfg)
			deps, err := app.Open(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer deps.Close()
			report, err := deps.Notes.Sweep(cmd.Context(), grace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, orphans %d, deleted %d, failed %d\n",
				report.Scanned, report.Orphans, report.Deleted, report.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Hand the sweep to the worker through Redis instead of running it here")
	cmd.Flags().DurationVar(&grace, "grace", 0, "Only delete blobs older than this (defaults to NOTEDROP_SWEEP_GRACE)")
	return cmd
}
