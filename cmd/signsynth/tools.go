package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/normanking/signsynth/internal/gloss"
	"github.com/normanking/signsynth/internal/pose"
	"github.com/normanking/signsynth/internal/rig"
	"github.com/normanking/signsynth/internal/signer"
	"github.com/normanking/signsynth/internal/timeline"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXPAND COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func expandCmd(a *app) *cobra.Command {
	var showGloss bool

	cmd := &cobra.Command{
		Use:   "expand [text]",
		Short: "Show the pose keys a text expands to",
		Long: `Expand text into the sequence of pose keys it would be signed with.

Examples:
  signsynth expand "hello world"
  signsynth expand --gloss "I want the milk"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.loadLibrary()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if showGloss {
				text = gloss.NewMapper(nil).ToGloss(text)
				fmt.Fprintf(out, "gloss:    %s\n", text)
			}
			seq := gloss.ExpandText(text, lib)
			if len(seq) == 0 {
				return signer.ErrNothingToSign
			}
			fmt.Fprintf(out, "sequence: %s\n", strings.Join(seq, " "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showGloss, "gloss", false, "map English to gloss before expanding")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIMELINE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func timelineCmd(a *app) *cobra.Command {
	var setup bool

	cmd := &cobra.Command{
		Use:   "timeline [key]",
		Short: "Print the joint tweens a pose entry plays as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.loadLibrary()
			if err != nil {
				return err
			}
			table, err := a.loadTable()
			if err != nil {
				return err
			}

			key := strings.ToLower(args[0])
			entry, ok := lib.Lookup(key)
			if !ok {
				if near, found := lib.Suggest(key); found {
					return fmt.Errorf("no pose entry %q (did you mean %q?)", key, near)
				}
				return fmt.Errorf("no pose entry %q", key)
			}

			mode := timeline.Sequence
			if setup {
				mode = timeline.Setup
			}
			tweens := timeline.NewBuilder(table, a.cfg.Timing).Build(entry, mode)
			printTimeline(cmd.OutOrStdout(), key, entry, mode, tweens)
			return nil
		},
	}
	cmd.Flags().BoolVar(&setup, "setup", false, "use setup durations instead of in-sequence ones")
	return cmd
}

func printTimeline(out io.Writer, key string, entry pose.Entry, mode timeline.Mode, tweens []rig.Tween) {
	kind := "static"
	if entry.Clip {
		kind = fmt.Sprintf("clip, %d frames", len(entry.Frames))
	}
	fmt.Fprintf(out, "%s (%s, %s)\n", key, kind, mode)

	var at time.Duration
	for i, tw := range tweens {
		fmt.Fprintf(out, "%4d  %8s  %-16s pos=%s hpr=%s  %s\n",
			i, at, tw.Joint, vec(tw.Pos), vec(tw.Hpr), tw.Duration)
		at += tw.Duration
	}
	fmt.Fprintf(out, "total %s over %d tweens\n", timeline.Duration(tweens), len(tweens))
}

func vec(v mgl32.Vec3) string {
	return fmt.Sprintf("(%.2f %.2f %.2f)", v[0], v[1], v[2])
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALIDATE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a pose document (and the configured skeleton)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Poses.Path
			if len(args) == 1 {
				path = args[0]
			}
			out := cmd.OutOrStdout()

			lib, err := pose.LoadFile(path, a.cfg.Poses.DefaultKey)
			if err != nil {
				var dfe *pose.DataFormatError
				if errors.As(err, &dfe) {
					fmt.Fprintln(out, newStyles(out).warn.Render(
						fmt.Sprintf("invalid entry %q at %s", dfe.Key, dfe.Path)))
				}
				return err
			}

			clips := 0
			for _, k := range lib.Keys() {
				if e, _ := lib.Lookup(k); e.Clip {
					clips++
				}
			}
			fmt.Fprintf(out, "%s: %d entries (%d clips), default %q\n", path, lib.Len(), clips, lib.DefaultKey())

			if a.cfg.Rig.SkeletonPath != "" {
				table, err := a.loadTable()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d joints resolved\n", a.cfg.Rig.SkeletonPath, table.Len())
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PLAY COMMAND (headless)
// ═══════════════════════════════════════════════════════════════════════════════

// maxPlayTime bounds a headless run in simulated time.
const maxPlayTime = 30 * time.Minute

func playCmd(a *app) *cobra.Command {
	var realtime, showPose bool

	cmd := &cobra.Command{
		Use:   "play [text]",
		Short: "Sign text on an in-memory rig and print the status trail",
		Long: `Sign text without a renderer. Time is simulated unless --realtime is set.

Examples:
  signsynth play "hello"
  signsynth play --realtime --pose "ball"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlay(cmd.OutOrStdout(), strings.Join(args, " "), realtime, showPose)
		},
	}
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace playback with the wall clock")
	cmd.Flags().BoolVar(&showPose, "pose", false, "print arm transforms after every frame that changes them")
	return cmd
}

func (a *app) runPlay(out io.Writer, text string, realtime, showPose bool) error {
	st := newStyles(out)
	start := time.Now()
	var (
		loopNow func() time.Time
		done    bool
	)

	eng, err := a.buildEngine(engineOptions{
		start: start,
		onStatus: func(status string) {
			if status == "" {
				return
			}
			stamp := fmt.Sprintf("[%8s]", loopNow().Sub(start))
			fmt.Fprintf(out, "%s %s\n", st.clock.Render(stamp), st.statusLine(status))
		},
		onComplete: func() { done = true },
	})
	if err != nil {
		return err
	}
	loopNow = eng.loop.Now

	_, closeHistory, err := a.openHistory(eng.events)
	if err != nil {
		return err
	}
	defer closeHistory()

	if err := eng.signer.Start(text); err != nil {
		return err
	}

	step := a.cfg.Timing.FrameInterval
	now := start
	var lastLeft, lastRight rig.Transform
	for !done {
		if now.Sub(start) > maxPlayTime {
			eng.signer.Stop()
			return fmt.Errorf("playback did not finish within %s", maxPlayTime)
		}
		if realtime {
			time.Sleep(step)
		}
		now = now.Add(step)
		eng.loop.Advance(now)
		eng.rig.Advance(step)

		if showPose {
			left, right := eng.builder.ArmTransforms(eng.rig)
			if left != lastLeft || right != lastRight {
				fmt.Fprintf(out, "           left %s %s  right %s %s\n",
					vec(left.Pos), vec(left.Hpr), vec(right.Pos), vec(right.Hpr))
				lastLeft, lastRight = left, right
			}
		}
	}
	return nil
}
