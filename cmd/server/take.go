package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/selve/internal/assessment"
	"github.com/ashureev/selve/internal/client"
	"github.com/ashureev/selve/internal/render"
	"github.com/spf13/cobra"
)

var takeCmd = &cobra.Command{
	Use:   "take",
	Short: "Answer an assessment from the terminal against a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		sessionID, _ := cmd.Flags().GetString("session")

		var opts []client.Option
		if token != "" {
			opts = append(opts, client.WithToken(token))
		}
		t := &taker{
			api:    client.New(server, opts...),
			drafts: client.NewDrafts(),
			in:     bufio.NewScanner(cmd.InOrStdin()),
			out:    cmd.OutOrStdout(),
		}
		return t.run(cmd, sessionID)
	},
}

func init() {
	takeCmd.Flags().String("server", "http://localhost:8080", "SELVE server base URL")
	takeCmd.Flags().String("token", "", "Bearer token identifying the user")
	takeCmd.Flags().String("session", "", "Resume an existing session")
}

type taker struct {
	api    *client.Client
	drafts *client.Drafts
	in     *bufio.Scanner
	out    io.Writer
}

func (t *taker) run(cmd *cobra.Command, sessionID string) error {
	ctx := cmd.Context()

	if sessionID == "" {
		s, err := t.api.CreateSession(ctx, map[string]any{"source": "cli"})
		if err != nil {
			return err
		}
		sessionID = s.ID
		fmt.Fprintf(t.out, "Session %s\n", sessionID)
	} else {
		s, err := t.api.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		t.drafts.Load(s.Answers)
		fmt.Fprintf(t.out, "Resuming session %s (%d answered)\n", sessionID, len(s.Answers))
	}

	for {
		step, err := t.api.Next(ctx, sessionID)
		if err != nil {
			return err
		}
		if step.Done {
			fmt.Fprintf(t.out, "Done. %d%% complete.\n", step.Progress.Percentage)
			return nil
		}

		if cp := step.Checkpoint; cp != nil {
			fmt.Fprintf(t.out, "\n== %s ==\n%s\n", cp.Title, cp.Message)
		}
		value, err := t.ask(step)
		if err != nil {
			return err
		}
		t.drafts.Set(step.Question.ID, value)

		if err := t.sync(ctx, sessionID); err != nil {
			return err
		}
	}
}

// sync pushes drafts to the server. A draft the server rejects is discarded
// so the question is asked again instead of blocking later submissions.
func (t *taker) sync(ctx context.Context, sessionID string) error {
	_, err := t.drafts.Sync(ctx, t.api, sessionID)
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	var syncErr *client.SyncError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest && errors.As(err, &syncErr) {
		t.drafts.Discard(syncErr.QuestionID)
		fmt.Fprintf(t.out, "Rejected: %s\n", apiErr.Message)
		return nil
	}
	return err
}

// ask prompts until the input parses for the question's view.
func (t *taker) ask(step *assessment.Step) (json.RawMessage, error) {
	q := step.Question
	fmt.Fprintf(t.out, "\n[%d%%] %s\n", step.Progress.Percentage, q.Text)
	fmt.Fprintln(t.out, hint(q.View))

	for {
		fmt.Fprint(t.out, "> ")
		if !t.in.Scan() {
			if err := t.in.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		value, err := parseInput(q.View, t.in.Text())
		if err != nil {
			fmt.Fprintln(t.out, err)
			continue
		}
		return value, nil
	}
}

func choiceOptions(v render.View) []render.Option {
	var c struct {
		Options []render.Option `json:"options"`
	}
	_ = json.Unmarshal(v.Config, &c)
	return c.Options
}

func hint(v render.View) string {
	switch v.Kind {
	case render.TypeScaleSlider:
		var c struct {
			Min, Max float64
		}
		_ = json.Unmarshal(v.Config, &c)
		return fmt.Sprintf("(number from %g to %g)", c.Min, c.Max)
	case render.TypeRadioGroup, render.TypeCheckboxGroup, render.TypeRankOrder:
		var b strings.Builder
		for i, o := range choiceOptions(v) {
			fmt.Fprintf(&b, "  %d) %s\n", i+1, o.Label)
		}
		if v.Kind != render.TypeRadioGroup {
			b.WriteString("(comma-separated numbers)")
		} else {
			b.WriteString("(pick a number)")
		}
		return b.String()
	case render.TypeYesNo:
		return "(y/n)"
	case render.KindPlaceholder:
		return "(" + v.Label + "; free text)"
	default:
		return "(free text)"
	}
}

// parseInput turns a line of terminal input into an answer value for v.
func parseInput(v render.View, input string) (json.RawMessage, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("an answer is required")
	}

	switch v.Kind {
	case render.TypeScaleSlider:
		n, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", input)
		}
		return json.Marshal(n)
	case render.TypeRadioGroup:
		choice, err := pickOption(choiceOptions(v), input)
		if err != nil {
			return nil, err
		}
		return json.Marshal(choice)
	case render.TypeCheckboxGroup, render.TypeRankOrder:
		opts := choiceOptions(v)
		var picked []string
		for _, part := range strings.Split(input, ",") {
			choice, err := pickOption(opts, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			picked = append(picked, choice)
		}
		return json.Marshal(picked)
	case render.TypeYesNo:
		switch strings.ToLower(input) {
		case "y", "yes", "true":
			return json.RawMessage(`true`), nil
		case "n", "no", "false":
			return json.RawMessage(`false`), nil
		}
		return nil, fmt.Errorf("answer y or n")
	default:
		return json.Marshal(input)
	}
}

func pickOption(opts []render.Option, input string) (string, error) {
	if i, err := strconv.Atoi(input); err == nil {
		if i < 1 || i > len(opts) {
			return "", fmt.Errorf("choose 1-%d", len(opts))
		}
		return opts[i-1].Value, nil
	}
	for _, o := range opts {
		if strings.EqualFold(o.Value, input) || strings.EqualFold(o.Label, input) {
			return o.Value, nil
		}
	}
	return "", fmt.Errorf("%q is not an option", input)
}
