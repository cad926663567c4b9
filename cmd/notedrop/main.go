// Command notedrop is the NoteDrop command-line client: log in, browse and
// filter the feed, upload, like, delete, preview and download notes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/NoteDrop/internal/client"
)

var (
	statePath    string
	serverURL    string
	allowedExts  = []string{".jpg", ".jpeg", ".pdf", ".docx"}
	maxFileBytes int64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "notedrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notedrop",
		Short: "NoteDrop command-line client",
		Long: `notedrop talks to a NoteDrop server: sign in once with "notedrop login", then
list, upload, like, delete, preview and download study notes.`,
		SilenceUsage: true,
	}
	defaultState, _ := client.StatePath()
	cmd.PersistentFlags().StringVar(&statePath, "state", defaultState, "Path of the saved login state")
	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Server URL (defaults to the one saved at login)")
	cmd.PersistentFlags().StringSliceVar(&allowedExts, "allowed-ext", allowedExts, "File extensions accepted for upload")
	cmd.PersistentFlags().Int64Var(&maxFileBytes, "max-file-bytes", 500<<20, "Largest file accepted for upload")
	cmd.AddCommand(
		newLoginCmd(),
		newListCmd(),
		newUploadCmd(),
		newLikeCmd(),
		newDeleteCmd(),
		newPreviewCmd(),
		newDownloadCmd(),
		newSemestersCmd(),
		newSweepCmd(),
	)
	return cmd
}

// session loads saved state and returns a client for it.
func session() (*client.State, *client.Client, error) {
	if statePath == "" {
		return nil, nil, fmt.Errorf("no state path; pass --state")
	}
	st, err := client.LoadState(statePath)
	if err != nil {
		return nil, nil, err
	}
	if serverURL != "" {
		st.Server = serverURL
	}
	return st, client.New(st.Server, st.Token, nil), nil
}

// authed is session but insists on a prior login.
func authed() (*client.State, *client.Client, error) {
	st, c, err := session()
	if err != nil {
		return nil, nil, err
	}
	if st.Token == "" {
		return nil, nil, fmt.Errorf("not logged in; run notedrop login first")
	}
	return st, c, nil
}
