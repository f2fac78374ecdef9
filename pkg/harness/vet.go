package harness

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/pipelab/pipespec/pkg/phrase"
)

// VetProblem is one step line that does not belong to the vocabulary.
type VetProblem struct {
	URI  string
	Line int
	Step string
	Err  *phrase.ParseError
}

func (p VetProblem) String() string {
	what := "unrecognized step"
	if p.Err != nil && p.Err.Kind == phrase.MalformedParameter {
		what = fmt.Sprintf("parameter %s %s", p.Err.Param, p.Err.Reason)
	}
	return fmt.Sprintf("%s:%d: %s: %s", p.URI, p.Line, what, p.Step)
}

// VetFeature parses one feature source and checks every step against the
// grammar without running anything. Outline steps carrying <placeholders>
// are skipped; they only become concrete at run time.
func VetFeature(uri string, src io.Reader) ([]VetProblem, error) {
	doc, err := gherkin.ParseGherkinDocument(src, (&messages.Incrementing{}).NewId)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}
	if doc.Feature == nil {
		return nil, nil
	}

	var problems []VetProblem
	check := func(steps []*messages.Step, outline bool) {
		for _, st := range steps {
			text := strings.TrimSpace(st.Text)
			if outline && strings.Contains(text, "<") {
				continue
			}
			if _, err := phrase.Parse(text); err != nil {
				var pe *phrase.ParseError
				errors.As(err, &pe)
				problems = append(problems, VetProblem{
					URI:  uri,
					Line: int(st.Location.Line),
					Step: text,
					Err:  pe,
				})
			}
		}
	}
	visit := func(bg *messages.Background, sc *messages.Scenario) {
		if bg != nil {
			check(bg.Steps, false)
		}
		if sc != nil {
			check(sc.Steps, len(sc.Examples) > 0)
		}
	}
	for _, child := range doc.Feature.Children {
		visit(child.Background, child.Scenario)
		if child.Rule != nil {
			for _, rc := range child.Rule.Children {
				visit(rc.Background, rc.Scenario)
			}
		}
	}
	return problems, nil
}

// VetPaths vets feature files and directories, directories searched
// recursively for .feature files. Problems come back ordered by file and
// line.
func VetPaths(paths []string) ([]VetProblem, error) {
	files, err := featureFiles(paths)
	if err != nil {
		return nil, err
	}
	var problems []VetProblem
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		found, verr := VetFeature(path, f)
		f.Close()
		if verr != nil {
			return nil, verr
		}
		problems = append(problems, found...)
	}
	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].URI != problems[j].URI {
			return problems[i].URI < problems[j].URI
		}
		return problems[i].Line < problems[j].Line
	})
	return problems, nil
}

func featureFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		walkErr := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".feature" {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	sort.Strings(files)
	return files, nil
}
