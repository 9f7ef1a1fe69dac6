package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/directory"
)

func TestStatic_Attributes(t *testing.T) {
	dir := directory.NewStatic()
	dir.PutSubscriber("sub-1", map[string]any{"email": "ana@example.com", "plan": "pro"})

	attrs, err := dir.Attributes(t.Context(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", attrs["email"])

	// Callers get a copy, not the stored map.
	attrs["plan"] = "free"
	again, err := dir.Attributes(t.Context(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "pro", again["plan"])

	_, err = dir.Attributes(t.Context(), "sub-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatic_Segments(t *testing.T) {
	dir := directory.NewStatic()
	dir.AddToSegment("sub-1", "seg-new")
	dir.AddToSegment("sub-2", "seg-new")
	dir.AddToSegment("sub-1", "seg-new") // duplicate is a no-op

	members, err := dir.SubscribersOf(t.Context(), "seg-new")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1", "sub-2"}, members)

	ok, err := dir.IsMember(t.Context(), "sub-1", "seg-new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.IsMember(t.Context(), "sub-1", "seg-other")
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err := dir.SubscribersOf(t.Context(), "seg-empty")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
