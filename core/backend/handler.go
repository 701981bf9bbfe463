// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/access"
)

// Request is the generic input of a handler operation: the decoded
// request payload, the identifier from the path for read, update and
// delete, and the acting principal (nil on public operations without a
// token).
type Request struct {
	ID        string
	Payload   map[string]interface{}
	Principal *access.Principal
}

// ExecuteFunc executes one operation. It returns the HTTP status code
// and the response envelope; it never returns raw unwrapped records and
// never lets a persistence fault escape.
type ExecuteFunc func(ctx context.Context, request *Request) (int, core.Envelope)

// OperationRoute describes one operation of a handler family: exactly
// one HTTP verb, a path suffix relative to the resource key, whether the
// operation is reachable without a bearer token, and the executor.
type OperationRoute struct {
	Operation core.Operation
	Method    string
	Suffix    string // "" or "/{id}"
	Public    bool
	Execute   ExecuteFunc
}

// HandlerFamily is the uniform contract every resource implements: a
// named resource model plus its set of operation routes.
type HandlerFamily interface {
	// Model returns the singular model name of the resource, e.g. "reminder"
	Model() string
	// Operations returns the operation routes of the family
	Operations() []OperationRoute
}
