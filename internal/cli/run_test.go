package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)
	var err error
	finishWithin(t, 10*time.Second, "run "+strings.Join(args, " "), func() {
		err = cmd.Execute()
	})
	return out.String(), err
}

func TestRun_ConsoleSessionPersists(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")

	out, err := runWithInput(t, "post hello lobby\nquit\n", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "started on sqlite/lobbysync.cypher.v3")
	assert.Regexp(t, `posted [0-9a-f-]{36}\n`, out)

	out, err = runWithInput(t, "feed\nquit\n", "--db", db, "--channel", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "started on sqlite/other")
	assert.Contains(t, out, ": hello lobby (likes 0, shares 0, views 0)")

	printed, err := execute(t, "feed", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, printed, "posts (1):")
	assert.Contains(t, printed, "hello lobby")
}

func TestRun_EndOfInputStops(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")
	out, err := runWithInput(t, "", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Replica ")
}

func TestRun_UnknownTransport(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")
	_, err := runWithInput(t, "", "--db", db, "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown transport "carrier-pigeon"`)
}

func TestRun_UnreachableNATS(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")
	_, err := runWithInput(t, "", "--db", db, "--transport", "nats", "--nats-url", "nats://127.0.0.1:1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open transport")
}

func TestRun_BlocklistFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "lobbysync.cue")
	require.NoError(t, writeFile(cfg, "moderation: blocklist: [\"griefing\"]\n"))

	out, err := runWithInput(t, "post no griefing allowed\npost clean drop\nquit\n",
		"--db", filepath.Join(dir, "feed.db"), "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "error: content blocked by moderation\n")
	assert.Regexp(t, `posted [0-9a-f-]{36}\n`, out)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
