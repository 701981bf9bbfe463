package backend

import (
	"context"
	"net/http"
	"testing"

	"github.com/goccy/go-json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevine/carevine/core"
)

func parseConfig(t *testing.T, raw string) Configuration {
	t.Helper()
	var config Configuration
	require.NoError(t, json.Unmarshal([]byte(raw), &config))
	return config
}

// testFamily is a minimal handler family for registry and binder tests
type testFamily struct {
	model  string
	routes []OperationRoute
}

func (f testFamily) Model() string                { return f.model }
func (f testFamily) Operations() []OperationRoute { return f.routes }

func okExecute(ctx context.Context, request *Request) (int, core.Envelope) {
	return http.StatusOK, core.Success("ok", nil)
}

func staticFamily(model string, routes ...OperationRoute) Factory {
	return func() (HandlerFamily, error) {
		return testFamily{model: model, routes: routes}, nil
	}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	registry := NewHandlerRegistry().
		Register("good", staticFamily("a")).
		Register("good2", staticFamily("c"))

	config := parseConfig(t, `{
		"resources": [
			{"key": "a", "handler": "good"},
			{"key": "b", "handler": "no_such_handler"},
			{"key": "c", "handler": "good2"}
		]
	}`)

	descriptors, diagnostics, err := registry.Load(config)
	require.NoError(t, err)

	require.Len(t, descriptors, 2)
	assert.Equal(t, "a", descriptors[0].Key)
	assert.Equal(t, "c", descriptors[1].Key)

	require.Len(t, diagnostics, 1)
	assert.Equal(t, "b", diagnostics[0].ConfigKey)
	assert.Contains(t, diagnostics[0].Reason, "no_such_handler")
}

func TestLoadSkipsNonStringHandlerReference(t *testing.T) {
	registry := NewHandlerRegistry().Register("good", staticFamily("a"))

	config := parseConfig(t, `{
		"resources": [
			{"key": "a", "handler": ["not", "a", "string"]},
			{"key": "b", "handler": 42},
			{"key": "c", "handler": "good"},
			{"handler": "good"}
		]
	}`)

	descriptors, diagnostics, err := registry.Load(config)
	require.NoError(t, err)

	require.Len(t, descriptors, 1)
	assert.Equal(t, "c", descriptors[0].Key)
	assert.Len(t, diagnostics, 3)
	// the keyless entry is reported under its index
	assert.Equal(t, "3", diagnostics[2].ConfigKey)
}

func TestLoadReportsFailingFactory(t *testing.T) {
	registry := NewHandlerRegistry().
		Register("broken", NewCollectionFamily(CollectionSpec{}, NewMemoryRecordStore(), nil, nil))

	config := parseConfig(t, `{"resources": [{"key": "a", "handler": "broken"}]}`)

	descriptors, diagnostics, err := registry.Load(config)
	require.NoError(t, err)
	assert.Empty(t, descriptors)
	require.Len(t, diagnostics, 1)
	assert.Contains(t, diagnostics[0].Reason, "malformed")
}

func TestLoadDuplicateKeyIsFatal(t *testing.T) {
	registry := NewHandlerRegistry().Register("good", staticFamily("a"))

	config := parseConfig(t, `{
		"resources": [
			{"key": "a", "handler": "good"},
			{"key": "a", "handler": "good"}
		]
	}`)

	_, _, err := registry.Load(config)
	assert.ErrorIs(t, err, ErrRegistrationCollision)
}

func TestRegisterTwicePanics(t *testing.T) {
	registry := NewHandlerRegistry().Register("good", staticFamily("a"))
	assert.Panics(t, func() {
		registry.Register("good", staticFamily("a"))
	})
}
