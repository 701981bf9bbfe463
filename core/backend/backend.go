// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/access"
	"github.com/carevine/carevine/core/csql"
	"github.com/carevine/carevine/core/logger"
	"github.com/carevine/carevine/core/registry"
)

const defaultRequestTimeout = 30 * time.Second

// Backend is the configuration driven resource API layer.
type Backend struct {
	config         Configuration
	router         *mux.Router
	descriptors    []ResourceDescriptor
	diagnostics    []Diagnostic
	routes         []RouteInfo
	requestTimeout time.Duration
}

// RouteInfo describes one bound route. The full list is the backend's
// route manifest; its order is registration order and deterministic.
type RouteInfo struct {
	Method    string         `json:"method"`
	Path      string         `json:"path"`
	Resource  string         `json:"resource"`
	Operation core.Operation `json:"operation"`
	Public    bool           `json:"public"`
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all resources. This is mandatory.
	Config string
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Registry is the handler registry configuration entries are
	// resolved against. This is mandatory.
	Registry *HandlerRegistry
	// Store is the record store resources are prepared on at boot.
	// This is optional; without it the handler families must prepare
	// their own storage.
	Store RecordStore
	// DB is a postgres database. This is optional; with a database the
	// backend persists its route manifest for operators.
	DB *csql.DB
	// RequestTimeout bounds the execution of a single request. Zero
	// selects the default of 30 seconds.
	RequestTimeout time.Duration
}

// routes of the authentication surface, which the resource layer
// coexists with and must not shadow
var reservedRoutes = map[string]string{
	"POST /login":    "authentication",
	"POST /register": "authentication",
	"POST /logout":   "authentication",
	"GET /user":      "authentication",
}

// New realizes the actual backend: it validates the configuration,
// resolves every entry through the handler registry and binds all
// resulting operations onto the router.
//
// Malformed configuration entries are skipped with a logged diagnostic.
// An ambiguous registration - a duplicate resource key or two operations
// binding the same verb and path - fails with ErrRegistrationCollision
// before any route is bound; no partial routing table is ever exposed.
func New(bb *Builder) (*Backend, error) {
	if bb.Router == nil {
		return nil, errors.New("Router is missing")
	}
	if bb.Registry == nil {
		return nil, errors.New("Registry is missing")
	}

	var config Configuration
	if err := json.Unmarshal([]byte(bb.Config), &config); err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %w", err)
	}

	b := &Backend{
		config:         config,
		router:         bb.Router,
		requestTimeout: bb.RequestTimeout,
	}
	if b.requestTimeout == 0 {
		b.requestTimeout = defaultRequestTimeout
	}

	descriptors, diagnostics, err := bb.Registry.Load(config)
	if err != nil {
		return nil, err
	}
	b.descriptors = descriptors
	b.diagnostics = diagnostics

	rlog := logger.Default()
	rlog.Debugln("backend: handle routes")

	// first pass: compose and validate the full routing table
	type binding struct {
		path  string
		route OperationRoute
	}
	var bindings []binding
	seen := map[string]string{}
	for routeKey, owner := range reservedRoutes {
		seen[routeKey] = owner
	}
	ensured := map[string]bool{}
	for _, descriptor := range descriptors {
		base := "/" + strings.Trim(descriptor.Key, "/")
		model := descriptor.Family.Model()
		if bb.Store != nil && !ensured[model] {
			if err := bb.Store.EnsureResource(context.Background(), model); err != nil {
				return nil, err
			}
			ensured[model] = true
		}
		for _, route := range descriptor.Family.Operations() {
			path := base + route.Suffix
			routeKey := route.Method + " " + path
			if owner, ok := seen[routeKey]; ok {
				return nil, fmt.Errorf("%w: %s already bound by %s", ErrRegistrationCollision, routeKey, owner)
			}
			seen[routeKey] = descriptor.Key
			bindings = append(bindings, binding{path: path, route: route})
			b.routes = append(b.routes, RouteInfo{
				Method:    route.Method,
				Path:      path,
				Resource:  descriptor.Key,
				Operation: route.Operation,
				Public:    route.Public,
			})
		}
	}

	// second pass: the table is collision free, bind it
	for _, binding := range bindings {
		rlog.Debugln("  handle route:", binding.path, binding.route.Method)
		bb.Router.HandleFunc(binding.path, b.operationHandler(binding.route)).Methods(binding.route.Method)
	}

	if bb.DB != nil {
		if err := b.writeManifest(bb.DB); err != nil {
			// bookkeeping only, the backend is fully functional without it
			rlog.WithError(err).Warningln("cannot persist route manifest")
		}
	}
	return b, nil
}

// MustNew realizes the actual backend like New but panics on error
func MustNew(bb *Builder) *Backend {
	b, err := New(bb)
	if err != nil {
		panic(err)
	}
	return b
}

// Routes returns the route manifest in registration order.
func (b *Backend) Routes() []RouteInfo {
	return b.routes
}

// Diagnostics returns the diagnostics for configuration entries skipped
// at load time.
func (b *Backend) Diagnostics() []Diagnostic {
	return b.diagnostics
}

func (b *Backend) writeManifest(db *csql.DB) error {
	reg, err := registry.New(db)
	if err != nil {
		return err
	}
	return reg.Accessor("_backend_").Write("routes", b.routes)
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// operationHandler wraps one operation route into an http handler: it
// enforces authentication for non public operations, decodes the request
// payload, bounds execution time and writes the response envelope.
func (b *Backend) operationHandler(route OperationRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal := access.PrincipalFromContext(ctx)
		if !route.Public && principal == nil {
			core.WriteEnvelope(w, http.StatusUnauthorized, core.Failure("unauthenticated"))
			return
		}
		ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()

		request := &Request{
			Payload:   map[string]interface{}{},
			Principal: principal,
		}
		if id, ok := mux.Vars(r)["id"]; ok {
			request.ID = id
		}
		if hasBody(r.Method) && r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&request.Payload); err != nil && err != io.EOF {
				core.WriteEnvelope(w, http.StatusBadRequest, core.Failure("invalid request body"))
				return
			}
		}
		status, envelope := route.Execute(ctx, request)
		core.WriteEnvelope(w, status, envelope)
	}
}
