package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/compose"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

// --- generate command ---

var (
	genTopic    string
	genDepth    int
	genFollowUp bool
	genDeadline time.Duration
	genJSON     bool
	genOut      string
)

var generateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Research a topic and write a brief",
	Example: `  briefgen generate "grid-scale battery storage" --depth 3
  briefgen generate --topic "sodium-ion batteries" --follow-up --user alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := genTopic
		if topic == "" {
			topic = strings.Join(args, " ")
		}

		req := brief.Request{
			Topic:    topic,
			Depth:    genDepth,
			FollowUp: genFollowUp,
			UserID:   viper.GetString("user"),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(os.Stderr, "Researching %q (depth %d)...\n", req.Topic, req.Depth)
		b, err := a.engine.RunBrief(ctx, req, genDeadline)
		if err != nil {
			return describeRunError(err)
		}

		out, err := renderBrief(b, genJSON)
		if err != nil {
			return err
		}
		if genOut != "" {
			if err := os.WriteFile(genOut, out, 0o644); err != nil {
				return fmt.Errorf("writing brief: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Brief %s written to %s\n", b.BriefID, genOut)
		} else {
			os.Stdout.Write(out)
		}

		if b.Partial {
			fmt.Fprintln(os.Stderr, "Note: this brief is partial; some sources were not processed before the deadline.")
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&genTopic, "topic", "t", "", "Topic to research")
	generateCmd.Flags().IntVarP(&genDepth, "depth", "d", 3, "Research depth (1-5)")
	generateCmd.Flags().BoolVar(&genFollowUp, "follow-up", false, "Build on the user's previous briefs")
	generateCmd.Flags().String("user", "", "User ID for history and follow-ups (env BRIEFGEN_USER)")
	generateCmd.Flags().DurationVar(&genDeadline, "deadline", 0, "Overall deadline (default from config)")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "Print the brief as JSON")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the brief to a file")
	viper.BindPFlag("user", generateCmd.Flags().Lookup("user"))
}

func renderBrief(b *brief.FinalBrief, asJSON bool) ([]byte, error) {
	if !asJSON {
		return []byte(compose.Markdown(b)), nil
	}
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding brief: %w", err)
	}
	return append(out, '\n'), nil
}

// describeRunError tells the user whether to fix their input or retry.
func describeRunError(err error) error {
	var re *failure.RunError
	if !errors.As(err, &re) {
		return err
	}

	var hint string
	switch re.Audience() {
	case failure.FixInput:
		hint = "check the request and try again"
	case failure.TryLater:
		hint = "this may be temporary; try again later"
	default:
		hint = "this is an internal error"
	}
	if re.Code == failure.Canceled {
		hint = "cancelled"
	}
	return fmt.Errorf("brief failed, %s: %w", hint, err)
}
