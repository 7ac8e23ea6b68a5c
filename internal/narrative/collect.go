package narrative

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Collect asks every question on w and reads one line per answer from r.
// Surrounding whitespace is trimmed. If r ends early the remaining answers are
// left empty; only read errors are returned.
func Collect(r io.Reader, w io.Writer) (Answers, error) {
	var answers Answers

	if _, err := fmt.Fprintf(w, "Please answer these %d narrative questions to help shape your monster:\n\n", Count); err != nil {
		return answers, fmt.Errorf("narrative: write intro: %w", err)
	}

	sc := bufio.NewScanner(r)
	for i, q := range Questions {
		if _, err := fmt.Fprintf(w, "%d. %s\n   > ", i+1, q.Text); err != nil {
			return answers, fmt.Errorf("narrative: ask question %d: %w", i+1, err)
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return answers, fmt.Errorf("narrative: read answer %d: %w", i+1, err)
			}
			_, _ = fmt.Fprintln(w)
			break
		}
		answers[i] = strings.TrimSpace(sc.Text())
	}
	return answers, nil
}
