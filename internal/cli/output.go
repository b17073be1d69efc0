package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// resolveFormat applies the default when --format was not given: a table for people,
// JSON for pipes.
func resolveFormat(flag string) string {
	if f := strings.ToLower(strings.TrimSpace(flag)); f != "" {
		return f
	}
	if stdoutIsTerminal() {
		return formatTable
	}
	return formatJSON
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// confirm asks a yes/no question on stdin. Without a terminal it refuses, so scripts
// must pass --force.
func confirm(w io.Writer, in io.Reader, question string) (bool, error) {
	if !stdinIsTerminal() {
		return false, fmt.Errorf("refusing to prompt without a terminal; pass --force")
	}
	_, _ = fmt.Fprintf(w, "%s (yes/no): ", question)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y", nil
}

func boolMark(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
