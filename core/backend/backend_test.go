package backend

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/access"
	"github.com/carevine/carevine/core/client"
	"github.com/carevine/carevine/core/credential"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

type listEnvelope struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Data    []map[string]interface{} `json:"data"`
}

// testEnvironment is a fully wired backend: resolver middleware, the
// authentication routes and the configured resource routes on one router.
type testEnvironment struct {
	backend *Backend
	router  *mux.Router
	token   string
}

func newTestEnvironment(t *testing.T, config string, handlers *HandlerRegistry) testEnvironment {
	t.Helper()

	resolver := access.NewResolver(access.NewMemoryPrincipalStore(), credential.NewMemoryStore(time.Hour))
	router := mux.NewRouter()
	router.Use(access.NewMiddleware(resolver))
	access.HandleAuthRoutes(router, resolver)

	b, err := New(&Builder{
		Config:   config,
		Router:   router,
		Registry: handlers,
		Store:    NewMemoryRecordStore(),
	})
	require.NoError(t, err)

	_, token, err := resolver.Register(context.Background(),
		"Grace", "grace@example.com", "correct horse battery", "test-device")
	require.NoError(t, err)

	return testEnvironment{backend: b, router: router, token: token}
}

func (e testEnvironment) client() client.Client {
	return client.NewWithRouter(e.router).WithToken(e.token)
}

func (e testEnvironment) anonymousClient() client.Client {
	return client.NewWithRouter(e.router)
}

func reminderRegistry() *HandlerRegistry {
	return NewHandlerRegistry().Register("reminder_collection",
		NewCollectionFamily(CollectionSpec{
			Model:    "reminder",
			Fillable: []string{"title", "notes", "due_at"},
		}, NewMemoryRecordStore(), nil, nil))
}

const reminderConfig = `{"resources": [{"key": "reminders", "handler": "reminder_collection"}]}`

func TestBackendResourceLifecycle(t *testing.T) {
	env := newTestEnvironment(t, reminderConfig, reminderRegistry())
	cl := env.client()

	var created envelope
	status, err := cl.Post("/reminders",
		map[string]string{"title": "morning medication"}, &created)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, created.Success)
	assert.Equal(t, "successfully created reminder", created.Message)
	id, ok := created.Data["id"].(string)
	require.True(t, ok)

	var read envelope
	status, err = cl.Get("/reminders/"+id, &read)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "morning medication", read.Data["title"])

	var list listEnvelope
	status, err = cl.Get("/reminders", &list)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Data, 1)

	var deleted envelope
	status, err = cl.Delete("/reminders/"+id, &deleted)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	status, err = cl.Delete("/reminders/"+id, &deleted)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, deleted.Success)
	assert.Equal(t, "no such reminder", deleted.Message)
}

func TestBackendRequiresAuthentication(t *testing.T) {
	env := newTestEnvironment(t, reminderConfig, reminderRegistry())

	var response envelope
	status, err := env.anonymousClient().Post("/reminders",
		map[string]string{"title": "unauthorized"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, response.Success)
	assert.Equal(t, "unauthenticated", response.Message)

	// a revoked token is as good as none
	cl := env.client()
	status, err = cl.Post("/logout", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	status, err = cl.Post("/reminders", map[string]string{"title": "stale"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBackendPublicOperations(t *testing.T) {
	handlers := NewHandlerRegistry().Register("bulletin_collection",
		NewCollectionFamily(CollectionSpec{
			Model:            "bulletin",
			Fillable:         []string{"title", "body"},
			PublicOperations: []core.Operation{core.OperationList, core.OperationRead},
		}, NewMemoryRecordStore(), nil, nil))
	env := newTestEnvironment(t,
		`{"resources": [{"key": "bulletins", "handler": "bulletin_collection"}]}`, handlers)

	var created envelope
	status, err := env.client().Post("/bulletins",
		map[string]string{"title": "flu shots on friday"}, &created)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	anonymous := env.anonymousClient()
	var list listEnvelope
	status, err = anonymous.Get("/bulletins", &list)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, list.Data, 1)

	// writing stays protected
	var response envelope
	status, err = anonymous.Post("/bulletins", map[string]string{"title": "forged"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBackendSkipsMalformedEntries(t *testing.T) {
	env := newTestEnvironment(t, `{"resources": [
		{"key": "reminders", "handler": "reminder_collection"},
		{"key": "broken", "handler": "no_such_handler"}
	]}`, reminderRegistry())

	require.Len(t, env.backend.Diagnostics(), 1)
	assert.Equal(t, "broken", env.backend.Diagnostics()[0].ConfigKey)

	// the well formed sibling is fully served
	cl := env.client()
	var list listEnvelope
	status, err := cl.Get("/reminders", &list)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	// the skipped entry got no route
	status, err = cl.Get("/broken", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBackendCollisionLeavesNoPartialTable(t *testing.T) {
	handlers := NewHandlerRegistry().
		Register("first", staticFamily("first",
			OperationRoute{Operation: core.OperationCreate, Method: http.MethodPost, Execute: okExecute})).
		Register("second", staticFamily("second",
			OperationRoute{Operation: core.OperationCreate, Method: http.MethodPost, Execute: okExecute}))

	router := mux.NewRouter()
	// "shared" and "shared/" are distinct keys but bind the same path
	_, err := New(&Builder{
		Config: `{"resources": [
			{"key": "shared", "handler": "first"},
			{"key": "shared/", "handler": "second"}
		]}`,
		Router:   router,
		Registry: handlers,
	})
	require.ErrorIs(t, err, ErrRegistrationCollision)

	// boot failed, so not even the first descriptor's route may exist
	cl := client.NewWithRouter(router)
	status, err := cl.Post("/shared", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBackendProtectsAuthenticationRoutes(t *testing.T) {
	handlers := NewHandlerRegistry().Register("squatter", staticFamily("squatter",
		OperationRoute{Operation: core.OperationList, Method: http.MethodGet, Execute: okExecute}))

	_, err := New(&Builder{
		Config:   `{"resources": [{"key": "user", "handler": "squatter"}]}`,
		Router:   mux.NewRouter(),
		Registry: handlers,
	})
	require.ErrorIs(t, err, ErrRegistrationCollision)
	assert.Contains(t, err.Error(), "authentication")
}

func TestBackendRejectsInvalidBody(t *testing.T) {
	env := newTestEnvironment(t, reminderConfig, reminderRegistry())

	var response envelope
	// a JSON string is valid JSON but not a record
	status, err := env.client().Post("/reminders", "not an object", &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid request body", response.Message)
}

func TestBackendRouteManifest(t *testing.T) {
	env := newTestEnvironment(t, reminderConfig, reminderRegistry())

	routes := env.backend.Routes()
	require.Len(t, routes, 6)
	assert.Equal(t, RouteInfo{
		Method: http.MethodPost, Path: "/reminders",
		Resource: "reminders", Operation: core.OperationCreate,
	}, routes[0])
	for _, route := range routes {
		assert.Equal(t, "reminders", route.Resource)
		assert.False(t, route.Public)
	}
}

func TestBackendBuilderValidation(t *testing.T) {
	_, err := New(&Builder{Config: "{}", Registry: NewHandlerRegistry()})
	assert.Error(t, err)

	_, err = New(&Builder{Config: "{}", Router: mux.NewRouter()})
	assert.Error(t, err)

	_, err = New(&Builder{
		Config:   `{"resources": [`,
		Router:   mux.NewRouter(),
		Registry: NewHandlerRegistry(),
	})
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustNew(&Builder{Config: "{}", Registry: NewHandlerRegistry()})
	})
}
