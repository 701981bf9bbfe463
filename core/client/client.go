// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router.
It is perfectly suited for unit tests and for request handlers that need
to call other handlers to fulfill their task.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router *mux.Router
	token  string
	ctx    context.Context
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// backend, through the mux router.
//
// WithToken() adds a bearer token to every request.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{router: router}
}

// WithToken returns a new client which sends the token as bearer
// authorization with every request
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the client's request context
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c Client) do(method, path string, body interface{}, result interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	r := httptest.NewRequest(method, path, &buf).WithContext(c.Context())
	if len(c.token) > 0 {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, r)

	status := w.Code
	if result != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), result); err != nil {
			return status, fmt.Errorf("cannot unmarshal response of %s %s: %w", method, path, err)
		}
	}
	return status, nil
}

// Get gets the resource from path and decodes the response into result
func (c Client) Get(path string, result interface{}) (int, error) {
	return c.do(http.MethodGet, path, nil, result)
}

// Post posts the body to path and decodes the response into result
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPost, path, body, result)
}

// Put puts the body to path and decodes the response into result
func (c Client) Put(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPut, path, body, result)
}

// Patch patches the body to path and decodes the response into result
func (c Client) Patch(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPatch, path, body, result)
}

// Delete deletes the resource at path
func (c Client) Delete(path string, result interface{}) (int, error) {
	return c.do(http.MethodDelete, path, nil, result)
}
