package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
)

// Output mode flags, bound to persistent flags in root.go.
var (
	jsonOutput     bool
	jsonlOutput    bool
	quietOutput    bool
	verboseOutput  bool
	nonInteractive bool
	watchMode      bool
)

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool { return jsonOutput }

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool { return jsonlOutput }

// IsQuiet reports whether --quiet was given.
func IsQuiet() bool { return quietOutput }

// IsVerbose reports whether --verbose was given.
func IsVerbose() bool { return verboseOutput }

// IsWatchMode reports whether --watch was given.
func IsWatchMode() bool { return watchMode }

// IsNonInteractive reports whether prompting is disabled, either via
// --non-interactive or because stdin is not a terminal.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	return !hasTTY()
}

// WriteOutput writes v as indented JSON, or as JSON Lines when --jsonl
// was given. In JSONL mode a slice is written one element per line.
func WriteOutput(w io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONL(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(w io.Writer, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			data, err := json.Marshal(rv.Index(i).Interface())
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, string(data)); err != nil {
				return err
			}
		}
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PreflightError is returned when a command cannot run in the current
// environment. It carries a hint and a suggested next step.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}
	if e.NextStep != "" {
		b.WriteString("\n  next: ")
		b.WriteString(e.NextStep)
	}
	return b.String()
}

// ConfirmDestructiveAction prompts on stderr before a destructive
// operation. Returns false when the user declines or when prompting is
// unavailable.
func ConfirmDestructiveAction(resourceType, resourceID, impact string) bool {
	if IsNonInteractive() {
		fmt.Fprintf(os.Stderr, "Refusing to remove %s '%s' without confirmation (non-interactive). Re-run with --force.\n",
			resourceType, resourceID)
		return false
	}

	fmt.Fprintf(os.Stderr, "About to remove %s '%s'.\n%s\n", resourceType, resourceID, impact)
	fmt.Fprint(os.Stderr, "Continue? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
