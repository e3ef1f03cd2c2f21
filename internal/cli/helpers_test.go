package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type env struct {
	dir    string
	config string
}

// newEnv writes a config file keeping every path under a temp dir, with no
// remote store configured.
func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	for _, k := range []string{"HDFS_URL", "CHEMLEDGER_REMOTE_URL", "CHEMLEDGER_S3_BUCKET", "CHEMLEDGER_LOG_LEVEL", "CHEMLEDGER_TABLE_DRIVER", "CHEMLEDGER_LOG_TRACE", "CHEMLEDGER_METRICS_EXPVAR"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	doc := "table:\n  path: " + filepath.Join(dir, "paraquat_data.json") +
		"\n  sqlite_path: " + filepath.Join(dir, "chemledger.db") +
		"\nfallback:\n  dir: " + filepath.Join(dir, "hdfs_fallback") +
		"\nlogging:\n  level: error\n" + extra
	path := filepath.Join(dir, "chemledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return &env{dir: dir, config: path}
}

type runResult struct {
	stdout string
	stderr string
	code   int
}

func (e *env) run(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", e.config}, args...)
	code := Execute(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return runResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (e *env) fallbackFile(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(e.dir, "hdfs_fallback", name))
	require.NoError(t, err)
	return b
}
