package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

// maxSlugSuffix bounds the collision search in [FileSink.Write].
const maxSlugSuffix = 1000

// FileSink writes each finalized record as <slug>.json and <slug>.md into a
// directory. When a monster with the same slug already exists, a numeric
// suffix is appended: gloomfang_lurker_2.json.
type FileSink struct {
	dir string

	// mu serialises slug reservation within the process. Across processes
	// the exclusive create of the .json file is the reservation.
	mu sync.Mutex
}

var _ Sink = (*FileSink)(nil)

// NewFileSink returns a FileSink writing into dir. The directory is created on
// first write.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Name implements [Sink].
func (s *FileSink) Name() string { return "file" }

// Dir returns the output directory.
func (s *FileSink) Dir() string { return s.dir }

// Write implements [Sink].
func (s *FileSink) Write(ctx context.Context, st *pipeline.State) error {
	rec, err := record(st)
	if err != nil {
		return err
	}
	data, err := monster.Encode(rec)
	if err != nil {
		return fmt.Errorf("sink: file: %w", err)
	}
	md := monster.Markdown(rec)

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("sink: file: create %s: %w", s.dir, err)
	}

	jsonFile, base, err := s.reserve(Slug(rec.Name))
	if err != nil {
		return err
	}
	if _, err := jsonFile.Write(append(data, '\n')); err != nil {
		_ = jsonFile.Close()
		return fmt.Errorf("sink: file: write %s: %w", jsonFile.Name(), err)
	}
	if err := jsonFile.Close(); err != nil {
		return fmt.Errorf("sink: file: close %s: %w", jsonFile.Name(), err)
	}

	mdPath := filepath.Join(s.dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("sink: file: write %s: %w", mdPath, err)
	}
	return nil
}

// reserve creates the first free <slug>[_N].json exclusively and returns it
// open for writing together with the chosen base name.
func (s *FileSink) reserve(slug string) (*os.File, string, error) {
	for n := 1; n <= maxSlugSuffix; n++ {
		base := slug
		if n > 1 {
			base = slug + "_" + strconv.Itoa(n)
		}
		if _, err := os.Stat(filepath.Join(s.dir, base+".md")); err == nil {
			continue
		}
		f, err := os.OpenFile(filepath.Join(s.dir, base+".json"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("sink: file: create %s.json: %w", base, err)
		}
		return f, base, nil
	}
	return nil, "", fmt.Errorf("sink: file: more than %d monsters named %q", maxSlugSuffix, slug)
}

// Slug returns the file base name for a monster name: lower-cased, with
// every character outside [a-z0-9] replaced by '_'. An empty result becomes
// "monster".
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "monster"
	}
	return b.String()
}
