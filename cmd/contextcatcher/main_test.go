package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/contextcatcher/internal/app"
	"github.com/nhle/contextcatcher/internal/credential"
	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/store"
	"github.com/nhle/contextcatcher/tests/testutil"
)

var configEnv = []string{
	"EMAIL_HOST", "EMAIL_PORT", "EMAIL_USERNAME", "EMAIL_PASSWORD",
	"LOOKBACK_HOURS", "LOOKBACK_MINUTES", "LLM_ENABLED",
	"LLM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "STORAGE_DIR",
}

// testEnv writes a config pointing at an unreachable mailbox and a fresh
// storage directory, and returns the config path and storage dir.
func testEnv(t *testing.T) (string, string) {
	t.Helper()
	for _, name := range configEnv {
		t.Setenv(name, "")
	}

	ring := keyring.NewArrayKeyring(nil)
	orig := openKeyring
	openKeyring = func() (credential.Store, error) { return ring, nil }
	t.Cleanup(func() { openKeyring = orig })

	dir := t.TempDir()
	storageDir := filepath.Join(dir, "storage")
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
email:
  host: 127.0.0.1
  port: 1
  use_ssl: false
  username: alice@example.com
  password: hunter2
fetch:
  max_retries: 1
  timeout_sec: 10
storage:
  dir: %s
`, storageDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, storageDir
}

func seedStore(t *testing.T, storageDir string, msgs ...model.NormalizedMessage) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(storageDir, "index.db"))
	require.NoError(t, err)
	defer s.Close()

	for _, m := range msgs {
		_, err := s.Save(context.Background(), m)
		require.NoError(t, err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contextcatcher dev")
	assert.Contains(t, out, "commit: none")
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contextcatcher 1.0.0")
	assert.Contains(t, out, "commit: abc123")
	assert.Contains(t, out, "built: 2026-01-01")
}

func TestRootCmdHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"fetch", "messages", "thread", "summary", "status", "watch", "config", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestExecuteReturnsExitCode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	cmd.SetArgs([]string{"version"})
	assert.Equal(t, 0, execute(cmd))

	cmd.SetArgs([]string{"no-such-command"})
	assert.Equal(t, 1, execute(cmd))
}

func TestInvalidLogLevel(t *testing.T) {
	path, _ := testEnv(t)
	_, err := run(t, "status", "--config", path, "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestMessagesCmdJSON(t *testing.T) {
	path, storageDir := testEnv(t)
	base := time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC)
	seedStore(t, storageDir,
		testutil.Message("<a@x>", "t1", "bob@example.com", base),
		testutil.Message("<b@x>", "t1", "carol@example.com", base.Add(time.Hour)),
		testutil.Message("<c@x>", "t2", "bob@example.com", base.Add(2*time.Hour)),
	)

	out, err := run(t, "messages", "--config", path, "--json", "--limit", "2")
	require.NoError(t, err)

	var page app.MessagePage
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "<c@x>", page.Messages[0].ID)
	assert.Equal(t, "<b@x>", page.Messages[1].ID)
}

func TestMessagesCmdText(t *testing.T) {
	path, storageDir := testEnv(t)
	seedStore(t, storageDir, testutil.Message("<a@x>", "t1", "bob@example.com", time.Now()))

	out, err := run(t, "messages", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Subject <a@x>")
	assert.Contains(t, out, "bob@example.com")
	assert.Contains(t, out, "Body of <a@x>")
	assert.Contains(t, out, "1-1 of 1")
}

func TestThreadCmd(t *testing.T) {
	path, storageDir := testEnv(t)
	base := time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC)
	seedStore(t, storageDir,
		testutil.Message("<a@x>", "t1", "bob@example.com", base),
		testutil.Message("<b@x>", "t1", "carol@example.com", base.Add(time.Hour)),
	)

	out, err := run(t, "thread", "t1", "--config", path, "--json")
	require.NoError(t, err)

	var view model.ThreadView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Subject <a@x>", view.Subject)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, view.Participants)

	_, err = run(t, "thread", "missing", "--config", path)
	assert.ErrorContains(t, err, `thread "missing" not found`)
}

func TestSummaryCmdEmptyStore(t *testing.T) {
	path, _ := testEnv(t)

	out, err := run(t, "summary", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No messages available to summarize.")
}

func TestSummaryCmdJSON(t *testing.T) {
	path, storageDir := testEnv(t)
	m := testutil.Message("<a@x>", "t1", "bob@example.com", time.Now())
	m.BodyText = "Please send the report by Friday."
	seedStore(t, storageDir, m)

	out, err := run(t, "summary", "--config", path, "--json", "-n", "3")
	require.NoError(t, err)

	var s model.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 1, s.MessageCount)
	assert.Equal(t, 0.5, s.Confidence)
	require.NotEmpty(t, s.ActionItems)
	assert.Contains(t, s.ActionItems[0].Action, "Please send the report")
}

func TestStatusCmd(t *testing.T) {
	path, storageDir := testEnv(t)
	seedStore(t, storageDir, testutil.Message("<a@x>", "t1", "bob@example.com", time.Now()))

	out, err := run(t, "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "messages")
}

func TestFetchCmdReportsConnectionFailure(t *testing.T) {
	path, _ := testEnv(t)

	out, err := run(t, "fetch", "--config", path, "--json")
	require.NoError(t, err, "a failed cycle is a result, not a command error")

	var res model.FetchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Zero(t, res.Fetched)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "connection failed")
	assert.NotContains(t, res.Errors[0], "hunter2")

	out, err = run(t, "status", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "never", "the recorded run seeds last fetch")
}

func TestWatchCmdRejectsBadSchedule(t *testing.T) {
	path, _ := testEnv(t)
	_, err := run(t, "watch", "--config", path, "--schedule", "whenever")
	assert.ErrorContains(t, err, `parsing schedule "whenever"`)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path, _ := testEnv(t)

	out, err := run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "***")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigInit(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "imap.gmail.com", cfg.Email.Host)

	_, err = run(t, "config", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")
}

func TestConfigInitInteractive(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	orig := runInitForm
	t.Cleanup(func() { runInitForm = orig })
	runInitForm = func(cfg *model.AppConfig) error {
		assert.Equal(t, "imap.gmail.com", cfg.Email.Host, "form starts from defaults")
		cfg.Email.Host = "mail.example.com"
		cfg.Email.Username = "dana@example.com"
		cfg.Email.Password = "typed-by-mistake"
		return nil
	}

	_, err := run(t, "config", "init", "--config", path, "-i")
	require.NoError(t, err)

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com", cfg.Email.Host)
	assert.Equal(t, "dana@example.com", cfg.Email.Username)
	assert.Empty(t, cfg.Email.Password)

	runInitForm = func(*model.AppConfig) error { return errors.New("user aborted") }
	_, err = run(t, "config", "init", "--config", path, "--force", "-i")
	assert.ErrorContains(t, err, "user aborted")
}

func TestValidateRequired(t *testing.T) {
	v := validateRequired("Host")
	assert.NoError(t, v("imap.example.com"))
	assert.EqualError(t, v("  "), "Host is required")
}

func TestConfigSetSecret(t *testing.T) {
	testEnv(t)
	ring := keyring.NewArrayKeyring(nil)
	openKeyring = func() (credential.Store, error) { return ring, nil }

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("app-password\n"))
	cmd.SetArgs([]string{"config", "set-secret", "email-password"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Stored email.password")

	got, err := credential.Get(ring, credential.KeyEmailPassword)
	require.NoError(t, err)
	assert.Equal(t, "app-password", got)

	_, err = run(t, "config", "set-secret", "ssh-key", "--value", "x")
	assert.ErrorContains(t, err, "unknown secret")
}

func TestConfigSetSecretPromptsOnTerminal(t *testing.T) {
	testEnv(t)
	ring := keyring.NewArrayKeyring(nil)
	openKeyring = func() (credential.Store, error) { return ring, nil }

	origTerm, origPrompt := isTerminal, promptSecret
	t.Cleanup(func() { isTerminal, promptSecret = origTerm, origPrompt })

	var title string
	isTerminal = func(io.Reader) bool { return true }
	promptSecret = func(prompt string) (string, error) {
		title = prompt
		return "typed-key", nil
	}

	out, err := run(t, "config", "set-secret", "llm-api-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored llm.api_key")
	assert.NotContains(t, out, "typed-key")
	assert.Contains(t, title, credential.KeyLLMAPIKey)

	got, err := credential.Get(ring, credential.KeyLLMAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "typed-key", got)

	promptSecret = func(string) (string, error) { return "", errors.New("user aborted") }
	_, err = run(t, "config", "set-secret", "email-password")
	assert.ErrorContains(t, err, "user aborted")
}

func TestConfigSetSecretEmptyInput(t *testing.T) {
	testEnv(t)

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs([]string{"config", "set-secret", "email-password"})
	assert.ErrorContains(t, cmd.Execute(), "no secret value provided")
}

func TestConfigDeleteSecret(t *testing.T) {
	testEnv(t)
	ring := keyring.NewArrayKeyring(nil)
	openKeyring = func() (credential.Store, error) { return ring, nil }
	require.NoError(t, credential.Set(ring, credential.KeyEmailPassword, "old"))

	out, err := run(t, "config", "delete-secret", "email-password")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted email.password")

	_, err = credential.Get(ring, credential.KeyEmailPassword)
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)

	_, err = run(t, "config", "delete-secret", "ssh-key")
	assert.ErrorContains(t, err, "unknown secret")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "one two", preview("  one\n\n two "))

	long := strings.Repeat("a", 100)
	p := preview(long)
	assert.Len(t, []rune(p), previewLen)
	assert.True(t, strings.HasSuffix(p, "..."))
}
