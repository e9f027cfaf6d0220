package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/config"
	"github.com/n1/biovault/internal/ipc"
	"github.com/n1/biovault/internal/secretstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDaemonSocket(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend = secretstore.BackendMemory
	cfg.LogLevel = "error"
	cfg.DataDir = dir
	cfg.Daemon.Socket = filepath.Join(dir, "bv.sock")
	cfg.Daemon.PIDFile = filepath.Join(dir, "run", "bv.pid")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, Options{Config: cfg}) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Daemon.Socket)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	pid, err := os.ReadFile(cfg.Daemon.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(pid))

	info, err := os.Stat(cfg.Daemon.Socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	client, err := ipc.Dial(ctx, cfg.Daemon.Socket)
	require.NoError(t, err)
	require.NoError(t, client.SetSecret(ctx, "k", []byte("v")))
	got, err := client.GetSecret(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	require.NoError(t, client.Close())

	cancel()
	require.NoError(t, <-done)

	_, err = os.Stat(cfg.Daemon.PIDFile)
	assert.True(t, os.IsNotExist(err), "PID file is removed on shutdown")
}

func TestRunDaemonRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	assert.Error(t, runDaemon(context.Background(), Options{Config: cfg}))
}

func TestListenReplacesStaleSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "sub", "bv.sock")
	require.NoError(t, os.MkdirAll(filepath.Dir(socket), 0700))
	require.NoError(t, os.WriteFile(socket, nil, 0600))

	ln, err := listen(socket)
	require.NoError(t, err)
	defer ln.Close()
	assert.Equal(t, socket, ln.Addr().String())
}

func TestWatchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan config.Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchConfig(ctx, path, func(c config.Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Rewrite until the watcher, which starts asynchronously, reports it.
	var got config.Config
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("log_level: debug\n"), 0600); err != nil {
			return false
		}
		select {
		case got = <-changes:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "debug", got.LogLevel)

	cancel()
	assert.NoError(t, <-done)
}

func TestNativeMessagingLaunch(t *testing.T) {
	assert.True(t, nativeMessagingLaunch([]string{"chrome-extension://abcdef/"}))
	assert.True(t, nativeMessagingLaunch([]string{"/usr/lib/mozilla/native-messaging-hosts/biovault.json", "biovault@example.org"}))
	assert.False(t, nativeMessagingLaunch(nil))
	assert.False(t, nativeMessagingLaunch([]string{"serve"}))
}

type pipeStream struct {
	io.Reader
	io.Writer
}

func stdioConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Backend = secretstore.BackendMemory
	cfg.LogLevel = "error"
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestStdioServesSession(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	cfg := stdioConfig(t)
	done := make(chan error, 1)
	go func() {
		done <- runDaemon(context.Background(), Options{
			Config: cfg,
			Stdio:  true,
			Stream: pipeStream{Reader: inR, Writer: outW},
		})
	}()

	require.NoError(t, ipc.WriteFrame(inW, ipc.Request{ID: 1, Op: biometrics.OpCanCheckPresence}))
	var resp ipc.Response
	require.NoError(t, ipc.ReadFrame(outR, &resp))
	assert.Equal(t, uint64(1), resp.ID)
	assert.True(t, resp.OK)
	assert.True(t, resp.Available)

	require.NoError(t, inW.Close())
	require.NoError(t, <-done)
}

func TestStdioStopsWhileReadIsPending(t *testing.T) {
	inR, inW := io.Pipe()
	t.Cleanup(func() { inW.Close() })

	cfg := stdioConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runDaemon(ctx, Options{
			Config: cfg,
			Stdio:  true,
			Stream: pipeStream{Reader: inR, Writer: io.Discard},
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stdio session did not stop after cancellation")
	}
}
