package execguard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

func newTestExecutor(t *testing.T, root string) (*Executor, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	cfg := &config.ExecConfig{
		AllowedPrograms: []string{"echo", "cat", "ls", "rm", "systemctl", "sleep"},
		AllowedRoots:    []string{root},
		ServiceVerbs:    []string{"restart", "status"},
		Timeout:         config.Duration{Duration: 5 * time.Second},
		OutputLimit:     4096,
	}
	return New(cfg, st), st
}

func TestRunEcho(t *testing.T) {
	e, _ := newTestExecutor(t, t.TempDir())
	res := e.Run(context.Background(), "echo hello crew")
	require.True(t, res.Success)
	assert.Equal(t, "hello crew\n", res.Stdout)
	assert.Zero(t, res.ReturnCode)
}

func TestRejectsMetacharacters(t *testing.T) {
	e, _ := newTestExecutor(t, t.TempDir())
	for _, line := range []string{
		"echo hi; rm -rf /tmp/x",
		"echo hi && echo bye",
		"echo hi | cat",
		"echo `date`",
		"echo $(date)",
	} {
		res := e.Run(context.Background(), line)
		assert.False(t, res.Success, line)
		assert.Equal(t, FailRejectedUnsafe, res.Failure, line)
	}
}

func TestRejectsUnknownProgram(t *testing.T) {
	e, _ := newTestExecutor(t, t.TempDir())
	res := e.Run(context.Background(), "curl https://example.com")
	assert.Equal(t, FailRejectedUnsafe, res.Failure)
	assert.Contains(t, res.Reason, "not in allow-list")
}

func TestSystemctlVerbGate(t *testing.T) {
	e, _ := newTestExecutor(t, t.TempDir())

	res := e.Run(context.Background(), "systemctl stop nginx")
	assert.Equal(t, FailRejectedUnsafe, res.Failure)
	assert.Contains(t, res.Reason, "verb")

	res = e.Run(context.Background(), "systemctl")
	assert.Equal(t, FailRejectedUnsafe, res.Failure)
}

func TestRejectsDangerousRMTargets(t *testing.T) {
	e, _ := newTestExecutor(t, t.TempDir())
	for _, target := range []string{"/", "..", "~", "/*"} {
		res := e.Run(context.Background(), "rm -rf "+target)
		assert.Equal(t, FailRejectedUnsafe, res.Failure, target)
		assert.Contains(t, res.Reason, "refused", target)
	}
}

func TestPathSandbox(t *testing.T) {
	root := t.TempDir()
	e, _ := newTestExecutor(t, root)

	inside := filepath.Join(root, "note.txt")
	require.NoError(t, os.WriteFile(inside, []byte("ahoy\n"), 0o644))

	res := e.Run(context.Background(), "cat "+inside)
	require.True(t, res.Success)
	assert.Equal(t, "ahoy\n", res.Stdout)

	res = e.Run(context.Background(), "cat /etc/passwd")
	assert.Equal(t, FailRejectedUnsafe, res.Failure)
	assert.Contains(t, res.Reason, "outside allowed roots")

	// Lexical ../ escape resolves outside the root.
	res = e.Run(context.Background(), "cat "+filepath.Join(root, "..", "escape.txt"))
	assert.Equal(t, FailRejectedUnsafe, res.Failure)
}

func TestTimeout(t *testing.T) {
	e, _ := newTestExecutor(t, t.TempDir())
	e.cfg.Timeout = config.Duration{Duration: 100 * time.Millisecond}

	res := e.Run(context.Background(), "sleep 5")
	assert.False(t, res.Success)
	assert.Equal(t, FailTimeout, res.Failure)
	assert.Equal(t, -1, res.ReturnCode)
}

func TestAuditTrail(t *testing.T) {
	e, st := newTestExecutor(t, t.TempDir())
	e.Run(context.Background(), "echo audited")
	e.Run(context.Background(), "curl https://example.com")

	entries := store.ReadJSONL[auditEntry](st.AuditLogPath())
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Allowed)
	assert.False(t, entries[1].Allowed)
	assert.NotEmpty(t, entries[1].Reason)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{`echo hello world`, []string{"echo", "hello", "world"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`echo esc\ aped`, []string{"echo", "esc aped"}},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}

	_, err := splitArgs(`echo "unterminated`)
	assert.Error(t, err)
}
