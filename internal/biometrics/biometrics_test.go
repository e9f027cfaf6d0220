package biometrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/n1/biovault/internal/log"
	"github.com/n1/biovault/internal/presence"
	"github.com/n1/biovault/internal/secretstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often the underlying store was written.
type countingStore struct {
	secretstore.Store
	mu     sync.Mutex
	writes int
	fail   error
}

func (c *countingStore) Put(n string, d []byte) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	return c.Store.Put(n, d)
}

func (c *countingStore) Delete(n string) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	return c.Store.Delete(n)
}

func newTestBackend(t *testing.T, verifyResult error) (*Backend, *presence.Static, *countingStore) {
	t.Helper()
	v := presence.NewStatic(true, verifyResult)
	s := &countingStore{Store: secretstore.NewMemory()}
	return NewBackend(v, s), v, s
}

func TestSecretRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBackend(t, nil)

	require.NoError(t, b.SetSecret(ctx, "pass/biometrics-key", []byte("hunter2")))
	got, err := b.GetSecret(ctx, "pass/biometrics-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), got)
}

func TestSecretOverwrite(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBackend(t, nil)

	require.NoError(t, b.SetSecret(ctx, "k", []byte("first")))
	require.NoError(t, b.SetSecret(ctx, "k", []byte("second")))

	got, err := b.GetSecret(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestDeleteThenReadFails(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBackend(t, nil)

	require.NoError(t, b.SetSecret(ctx, "k", []byte("v")))
	require.NoError(t, b.DeleteSecret(ctx, "k"))

	_, err := b.GetSecret(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, secretstore.ErrNotFound, "the store error stays in the chain")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeleteMissing(t *testing.T) {
	b, _, _ := newTestBackend(t, nil)
	err := b.DeleteSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCapabilityProbeDoesNotPrompt(t *testing.T) {
	b, v, s := newTestBackend(t, nil)

	ok, err := b.CanCheckPresence(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, v.Probes())
	assert.Zero(t, v.Prompts(), "probe must not prompt")
	assert.Zero(t, s.writes)
}

func TestCheckPresence(t *testing.T) {
	testCases := []struct {
		name   string
		result error
		kind   Kind
	}{
		{name: "Verified", result: nil},
		{name: "Cancelled", result: presence.ErrCancelled, kind: KindUserCancelled},
		{name: "Failed", result: presence.ErrFailed, kind: KindAuthFailed},
		{name: "NotEnrolled", result: presence.ErrNotConfigured, kind: KindNotAvailable},
		{name: "LockedOut", result: presence.ErrLockedOut, kind: KindLockedOut},
		{name: "Policy", result: presence.ErrDenied, kind: KindAccessDenied},
		{name: "Opaque", result: errors.New("boom"), kind: KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			b, v, s := newTestBackend(t, tc.result)
			require.NoError(t, b.SetSecret(ctx, "k", []byte("before")))
			writes := s.writes

			err := b.CheckPresence(ctx, []byte{1, 2, 3, 4}, "Unlock biovault")
			assert.EqualValues(t, 1, v.Prompts())
			if tc.result == nil {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tc.kind, KindOf(err))
				assert.ErrorIs(t, err, tc.result)
			}

			// Presence checks never touch storage, whatever their outcome.
			assert.Equal(t, writes, s.writes)
			got, err := b.GetSecret(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("before"), got)
		})
	}
}

func TestCheckPresenceNeedsReason(t *testing.T) {
	b, v, _ := newTestBackend(t, nil)
	err := b.CheckPresence(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, v.Prompts())
}

func TestCheckPresenceCancelled(t *testing.T) {
	b, _, _ := newTestBackend(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.CheckPresence(ctx, nil, "Unlock")
	assert.ErrorIs(t, err, ErrUserCancelled)
}

func TestInvalidKeysNeverReachStore(t *testing.T) {
	ctx := context.Background()
	b, _, s := newTestBackend(t, nil)

	for _, key := range []string{"", "-leading", "has space", "tab\t", strings.Repeat("a", MaxKeyLen+1)} {
		assert.ErrorIs(t, b.SetSecret(ctx, key, []byte("v")), ErrInvalidKey, "key %q", key)
		assert.ErrorIs(t, b.DeleteSecret(ctx, key), ErrInvalidKey, "key %q", key)
		_, err := b.GetSecret(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
	assert.Zero(t, s.writes)
}

func TestStoreErrorsAreClassified(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		err  error
		kind Kind
	}{
		{err: secretstore.ErrTooLarge, kind: KindTooLarge},
		{err: secretstore.ErrAccessDenied, kind: KindAccessDenied},
		{err: fmt.Errorf("%w: dbus", secretstore.ErrUnavailable), kind: KindStorageUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			b, _, s := newTestBackend(t, nil)
			s.fail = tc.err

			err := b.SetSecret(ctx, "k", []byte("v"))
			assert.Equal(t, tc.kind, KindOf(err))
			var bioErr *Error
			require.ErrorAs(t, err, &bioErr)
			assert.Equal(t, OpSetSecret, bioErr.Op)
			assert.Equal(t, "k", bioErr.Key)
		})
	}
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBackend(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			assert.NoError(t, b.SetSecret(ctx, key, []byte(key)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("k%d", i)
		got, err := b.GetSecret(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(key), got)
	}
}

func TestNewMemoryBackend(t *testing.T) {
	b, err := New(Options{Store: secretstore.Options{Backend: secretstore.BackendMemory, Service: "test"}})
	require.NoError(t, err)

	ok, err := b.CanCheckPresence(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, b.CheckPresence(context.Background(), nil, "Unlock"))
}

func TestBackendFollowsLevelChanges(t *testing.T) {
	level := zerolog.GlobalLevel()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		zerolog.SetGlobalLevel(level)
	})

	log.SetLevel(zerolog.InfoLevel)
	b, _, _ := newTestBackend(t, nil)

	// Reload after the backend exists, as biovaultd does on config change.
	log.SetLevel(zerolog.DebugLevel)
	_, err := b.CanCheckPresence(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Presence probed")
}
