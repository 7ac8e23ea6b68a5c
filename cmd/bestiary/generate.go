package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrWong99/bestiary/internal/app"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

var (
	answersFile string
	count       int
	outDir      string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate monsters interactively or from an answers file",
	Long: `Generates monsters and delivers them to every configured output.

Without --answers the five narrative questions are asked on the terminal.
With --answers, every answer set in the YAML file is generated; a file holds
either one set at the top level or a list under "monsters":

  dark_secret: It was once the town's lighthouse keeper.
  environment: A drowned city beneath a black lake.
  motivation: It wants to be remembered, not feared.
  interaction: Eels gather around it like courtiers.
  terror: Its lantern shows you the moment of your death.

--count repeats every answer set; independent runs execute concurrently up to
pipeline.concurrency.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&answersFile, "answers", "a", "", "YAML file with narrative answers (default: ask interactively)")
	generateCmd.Flags().IntVarP(&count, "count", "n", 1, "monsters to generate per answer set")
	generateCmd.Flags().StringVarP(&outDir, "out", "o", "", "write JSON and Markdown files to this directory (overrides sinks.files)")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if count < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", count)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Sinks.Files.Dir = outDir
		cfg.Sinks.Files.Disabled = false
	}

	sets, err := readAnswers(cmd)
	if err != nil {
		return err
	}
	answers := repeat(sets, count)

	ctx := cmd.Context()
	a, err := newApplication(ctx, cfg, app.WithTerminal(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer shutdown(a)

	if len(answers) == 1 {
		st, err := a.Run(ctx, answers[0])
		report(cmd.ErrOrStderr(), st, err)
		if st == nil || st.Record() == nil {
			return errors.New("generation failed")
		}
		return nil
	}

	var failed int
	for _, r := range a.Batch(ctx, answers) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] ", r.Index+1, len(answers))
		report(cmd.ErrOrStderr(), r.State, r.Err)
		if r.State == nil || r.State.Record() == nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d monsters failed", failed, len(answers))
	}
	return nil
}

func readAnswers(cmd *cobra.Command) ([]narrative.Answers, error) {
	if answersFile != "" {
		return narrative.LoadFile(answersFile)
	}
	a, err := narrative.Collect(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return []narrative.Answers{a}, nil
}

// repeat returns every set n times, keeping sets of the same input together.
func repeat(sets []narrative.Answers, n int) []narrative.Answers {
	out := make([]narrative.Answers, 0, len(sets)*n)
	for _, s := range sets {
		for range n {
			out = append(out, s)
		}
	}
	return out
}

// report prints a one-line outcome of a run.
func report(w io.Writer, st *pipeline.State, err error) {
	switch {
	case st != nil && st.Record() != nil && err != nil:
		fmt.Fprintf(w, "generated %q (run %s) but an output failed: %v\n", st.Record().Name, st.RunID, err)
	case st != nil && st.Record() != nil:
		fmt.Fprintf(w, "generated %q (run %s)\n", st.Record().Name, st.RunID)
	default:
		var re *pipeline.RunError
		if errors.As(err, &re) {
			fmt.Fprintf(w, "failed at the %s stage (%s after %d attempts, cause %s): %v\n",
				re.Stage, re.Kind, re.Attempts, pipeline.Cause(re.Err), re.Err)
			return
		}
		fmt.Fprintf(w, "failed: %v\n", err)
	}
}
