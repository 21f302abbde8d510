package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/history"
)

// openHistory starts recording sessions from events when history is enabled.
// The returned close flushes the recorder and closes the store; both are nil
// when history is off.
func (a *app) openHistory(events *bus.EventBus) (*history.Store, func(), error) {
	if !a.cfg.History.Enabled {
		return nil, func() {}, nil
	}
	path, err := a.cfg.HistoryPath()
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	rec := history.NewRecorder(store, events, a.log.Component("history"))
	a.log.Debug("history", "Recording sessions", map[string]interface{}{"path": path})

	return store, func() {
		rec.Close()
		store.Close()
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HISTORY COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func historyCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent signing sessions",
		Long: `List the most recent signing sessions, newest first.

Sessions are recorded by play and serve when history is enabled
(--history or history.enabled in the config file).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.cfg.HistoryPath()
			if err != nil {
				return err
			}
			store, err := history.Open(path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			sessions, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of sessions to show")
	return cmd
}

func printSessions(out io.Writer, sessions []history.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions recorded")
		return
	}

	st := newStyles(out)
	for _, s := range sessions {
		outcome := string(s.Outcome)
		switch s.Outcome {
		case history.OutcomeCompleted:
			outcome = st.done.Render(outcome)
		case history.OutcomeStopped:
			outcome = st.warn.Render(outcome)
		}

		took := "-"
		if !s.EndedAt.IsZero() {
			took = s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(out, "%s  %-9s %8s  signs=%d slides=%d skipped=%d  %q\n",
			st.clock.Render(s.StartedAt.Format("2006-01-02 15:04:05")),
			outcome, took, s.Signs, s.Slides, s.Skipped, s.Text)
		if len(s.Sequence) > 0 {
			fmt.Fprintf(out, "    %s\n", strings.Join(s.Sequence, " "))
		}
	}
}
