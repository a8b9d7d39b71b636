package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config whose data_dir lives in a temp dir.
// extra is a JSON object merged in as-is; empty means none.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	body := fmt.Sprintf(`{"data_dir": %q, "logging": {"console": false}}`, filepath.Join(dir, "data"))
	if extra != "" {
		body = fmt.Sprintf(`{"data_dir": %q, "logging": {"console": false}, %s}`, filepath.Join(dir, "data"), extra[1:len(extra)-1])
	}

	path := filepath.Join(dir, "chanbridge.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// runCLI executes the root command with args and returns combined output
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetHelpFlags(GetRootCmd())

	cmd := GetRootCmd()
	cmd.SetArgs(args)
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	err := cmd.Execute()
	return output.String(), err
}

// resetHelpFlags clears --help and --version left set by an earlier
// Execute in this process
func resetHelpFlags(cmd *cobra.Command) {
	for _, name := range []string{"help", "version"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
	for _, sub := range cmd.Commands() {
		resetHelpFlags(sub)
	}
}
