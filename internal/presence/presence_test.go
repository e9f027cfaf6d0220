package presence

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	ok := NewStatic(true, nil)
	available, err := ok.Available(ctx)
	require.NoError(t, err)
	assert.True(t, available)
	assert.NoError(t, ok.Verify(ctx, nil, "unlock"))
	assert.EqualValues(t, 1, ok.Probes())
	assert.EqualValues(t, 1, ok.Prompts())

	refused := NewStatic(true, ErrFailed)
	assert.ErrorIs(t, refused.Verify(ctx, nil, "unlock"), ErrFailed)

	missing := NewStatic(false, nil)
	available, err = missing.Available(ctx)
	require.NoError(t, err)
	assert.False(t, available)
	assert.ErrorIs(t, missing.Verify(ctx, nil, "unlock"), ErrUnavailable)
}

func TestStaticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewStatic(true, nil).Verify(ctx, nil, "unlock"), ErrCancelled)
}

func TestPolicy(t *testing.T) {
	doc, err := Policy(DefaultPolkitAction, "n1", "Unlock biovault", "Authentication is required to unlock your secrets")
	require.NoError(t, err)

	var parsed struct {
		Vendor string `xml:"vendor"`
		Action struct {
			ID       string `xml:"id,attr"`
			Message  string `xml:"message"`
			Defaults struct {
				AllowActive string `xml:"allow_active"`
			} `xml:"defaults"`
		} `xml:"action"`
	}
	require.NoError(t, xml.Unmarshal(doc, &parsed))
	assert.Equal(t, "n1", parsed.Vendor)
	assert.Equal(t, DefaultPolkitAction, parsed.Action.ID)
	assert.Equal(t, "auth_self", parsed.Action.Defaults.AllowActive)
	assert.Contains(t, string(doc), "policyconfig.dtd")

	_, err = Policy("", "n1", "", "")
	assert.Error(t, err)
}

func TestNewReturnsVerifier(t *testing.T) {
	require.NotNil(t, New(Options{}))
}
