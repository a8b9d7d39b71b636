package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/harun/chanbridge/pkg/chat/chattest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	cfg := testConfig(t)
	daemon, _ := createTestDaemon(t, cfg, chattest.New("UBOT"))

	lm := NewLifecycleManager(daemon)
	assert.NotNil(t, lm)
	assert.Equal(t, daemon, lm.daemon)
	assert.Equal(t, filepath.Join(cfg.DataDir, "chanbridge.pid"), lm.pidFile)
}

func TestLifecycleManagerStartStop(t *testing.T) {
	daemon, _ := createTestDaemon(t, testConfig(t), chattest.New("UBOT"))
	lm := NewLifecycleManager(daemon)

	require.NoError(t, lm.Start())

	info, err := os.Stat(lm.pidFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(pidFileMode), info.Mode().Perm())
	assert.True(t, lm.IsRunning())

	require.NoError(t, lm.Stop())

	_, err = os.Stat(lm.pidFile)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())

	// Removing an absent PID file is fine
	require.NoError(t, lm.Stop())
}

func TestLifecycleManagerGetPID(t *testing.T) {
	daemon, _ := createTestDaemon(t, testConfig(t), chattest.New("UBOT"))
	lm := NewLifecycleManager(daemon)

	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycleManagerRefusesLiveDaemon(t *testing.T) {
	daemon, _ := createTestDaemon(t, testConfig(t), chattest.New("UBOT"))
	lm := NewLifecycleManager(daemon)

	// The parent of the test binary is alive and is not us
	ppid := os.Getppid()
	require.NoError(t, os.WriteFile(lm.pidFile, []byte(strconv.Itoa(ppid)), pidFileMode))

	err := lm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	assert.True(t, os.IsNotExist(err))

	garbage := filepath.Join(dir, "garbage.pid")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-pid"), 0o600))
	_, err = ReadPID(garbage)
	assert.Error(t, err)

	ok := filepath.Join(dir, "ok.pid")
	require.NoError(t, os.WriteFile(ok, []byte("4242\n"), 0o600))
	pid, err := ReadPID(ok)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestProcessRunning(t *testing.T) {
	assert.True(t, ProcessRunning(os.Getpid()))
}
