package docstore

import (
	"context"
	"testing"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCollection struct {
	name    string
	ensured bool
	fail    error
}

func (s *stubCollection) Name() string { return s.name }

func (s *stubCollection) EnsureIndexes(_ context.Context) error {
	s.ensured = true
	return s.fail
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)

	_, err = NewManager(&ManagerOpts{Name: "mongodb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database name")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := &Manager{collections: map[string]managedCollection{}}

	require.NoError(t, m.register(&stubCollection{name: "assets"}))
	require.NoError(t, m.register(&stubCollection{name: "devices"}))

	err := m.register(&stubCollection{name: "assets"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assets")
}

func TestEnsureIndexesFanOut(t *testing.T) {
	m := &Manager{collections: map[string]managedCollection{}}

	first := &stubCollection{name: "assets"}
	second := &stubCollection{name: "devices"}
	require.NoError(t, m.register(first))
	require.NoError(t, m.register(second))

	require.NoError(t, m.EnsureIndexes(context.Background()))
	assert.True(t, first.ensured)
	assert.True(t, second.ensured)
}

func TestEnsureIndexesReportsFailingCollection(t *testing.T) {
	m := &Manager{collections: map[string]managedCollection{}}
	require.NoError(t, m.register(&stubCollection{name: "assets", fail: errors.New("index conflict")}))

	err := m.EnsureIndexes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assets")
}

func TestGetEnv(t *testing.T) {
	t.Setenv("DOCSTORE_TEST_KEY", "set")
	assert.Equal(t, "set", getEnv("DOCSTORE_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnv("DOCSTORE_TEST_MISSING", "fallback"))
}
