package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
)

// Failure describes one step that did not behave as scripted.
type Failure struct {
	// Step is the 1-based index of the failing step.
	Step    int
	Kind    string
	Message string
}

func (f Failure) String() string {
	return fmt.Sprintf("step %d (%s): %s", f.Step, f.Kind, f.Message)
}

// Result is the outcome of replaying one scenario.
type Result struct {
	Name     string
	Path     string
	Steps    int
	Display  string
	Failures []Failure
}

// Passed reports whether every step behaved as scripted.
func (r Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run replays s against a fresh engine. Every failing step is reported; the
// replay continues past failures so one run shows all mismatches.
func Run(s *Scenario) Result {
	result := Result{}
	if s == nil {
		return result
	}
	result.Name = s.Name
	result.Path = s.Path
	result.Steps = len(s.Steps)

	e := engine.New()
	fail := func(index int, step Step, format string, args ...any) {
		result.Failures = append(result.Failures, Failure{
			Step:    index + 1,
			Kind:    step.Kind,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for i, step := range s.Steps {
		switch step.Kind {
		case StepPress, StepKey, StepAction:
			actions, err := resolveStep(step)
			if err != nil {
				fail(i, step, "%v", err)
				continue
			}
			for _, action := range actions {
				if _, err := e.Dispatch(action); err != nil {
					fail(i, step, "dispatch %s: %v", action, err)
					break
				}
			}
		case StepExpect:
			want := ""
			if len(step.Args) > 0 {
				want = step.Args[0]
			}
			if got := e.View().Display; got != want {
				fail(i, step, "display = %q, want %q", got, want)
			}
		case StepExpectMemory:
			if got := e.View().HasMemory; got != step.Memory {
				fail(i, step, "has_memory = %t, want %t", got, step.Memory)
			}
		default:
			fail(i, step, "unknown step kind")
		}
	}
	result.Display = e.View().Display
	return result
}

func resolveStep(step Step) ([]engine.Action, error) {
	if step.Kind == StepAction {
		if len(step.Args) != 2 {
			return nil, fmt.Errorf("action step needs a type and value")
		}
		action, err := keymap.Resolve(keymap.Input{Type: step.Args[0], Value: step.Args[1]})
		if err != nil {
			return nil, err
		}
		return []engine.Action{action}, nil
	}
	actions := make([]engine.Action, 0, len(step.Args))
	for _, arg := range step.Args {
		in := keymap.Input{Button: arg}
		if step.Kind == StepKey {
			in = keymap.Input{Key: arg}
		}
		action, err := keymap.Resolve(in)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// RunFile loads and replays every scenario in the script at path.
func RunFile(path string) ([]Result, error) {
	scenarios, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		results = append(results, Run(s))
	}
	return results, nil
}

// RunDir replays every *.lua script in dir in name order. A script that
// fails to load aborts the run.
func RunDir(dir string) ([]Result, error) {
	paths, err := ScriptPaths(dir)
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, path := range paths {
		fileResults, err := RunFile(path)
		if err != nil {
			return results, err
		}
		results = append(results, fileResults...)
	}
	return results, nil
}

// ScriptPaths lists the *.lua files directly inside dir.
func ScriptPaths(dir string) ([]string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("scenario dir is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scenario dir %s is not a directory", dir)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
