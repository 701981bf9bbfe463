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
	"net/http"

	"github.com/goccy/go-json"

	"github.com/google/uuid"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/logger"
	"github.com/carevine/carevine/core/schema"
)

// CollectionSpec describes a CRUD collection resource.
type CollectionSpec struct {
	// Model is the singular model name, e.g. "reminder". It names the
	// storage resource.
	Model string
	// Fillable is the allow-list of fields accepted from clients on
	// create and update. Unknown payload fields are dropped, they are
	// never stored.
	Fillable []string
	// SchemaID optionally references a JSON schema the filtered payload
	// must validate against.
	SchemaID string
	// PublicOperations lists operations reachable without a bearer token.
	PublicOperations []core.Operation
}

type collectionFamily struct {
	spec     CollectionSpec
	fillable map[string]bool
	public   map[core.Operation]bool
	store    RecordStore
	schemas  *schema.Validator
	notifier core.Notifier
}

// NewCollectionFamily returns a factory for the standard CRUD handler
// family: create, read, update, delete and list over a record store.
// The factory fails, marking the referencing configuration entry as
// malformed, if the spec lacks a model or a fillable set, or if it
// references an unknown schema.
func NewCollectionFamily(spec CollectionSpec, store RecordStore, schemas *schema.Validator, notifier core.Notifier) Factory {
	return func() (HandlerFamily, error) {
		if len(spec.Model) == 0 {
			return nil, errors.New("collection spec lacks a model name")
		}
		if len(spec.Fillable) == 0 {
			return nil, fmt.Errorf("collection %s lacks a fillable field set", spec.Model)
		}
		if store == nil {
			return nil, fmt.Errorf("collection %s lacks a record store", spec.Model)
		}
		if len(spec.SchemaID) > 0 && (schemas == nil || !schemas.HasSchema(spec.SchemaID)) {
			return nil, fmt.Errorf("collection %s references unknown schema %s", spec.Model, spec.SchemaID)
		}
		family := &collectionFamily{
			spec:     spec,
			fillable: map[string]bool{},
			public:   map[core.Operation]bool{},
			store:    store,
			schemas:  schemas,
			notifier: notifier,
		}
		for _, field := range spec.Fillable {
			family.fillable[field] = true
		}
		for _, operation := range spec.PublicOperations {
			family.public[operation] = true
		}
		return family, nil
	}
}

func (f *collectionFamily) Model() string {
	return f.spec.Model
}

func (f *collectionFamily) Operations() []OperationRoute {
	return []OperationRoute{
		{Operation: core.OperationCreate, Method: http.MethodPost, Suffix: "",
			Public: f.public[core.OperationCreate], Execute: f.create},
		{Operation: core.OperationList, Method: http.MethodGet, Suffix: "",
			Public: f.public[core.OperationList], Execute: f.list},
		{Operation: core.OperationRead, Method: http.MethodGet, Suffix: "/{id}",
			Public: f.public[core.OperationRead], Execute: f.read},
		{Operation: core.OperationUpdate, Method: http.MethodPut, Suffix: "/{id}",
			Public: f.public[core.OperationUpdate], Execute: f.update},
		{Operation: core.OperationUpdate, Method: http.MethodPatch, Suffix: "/{id}",
			Public: f.public[core.OperationUpdate], Execute: f.update},
		{Operation: core.OperationDelete, Method: http.MethodDelete, Suffix: "/{id}",
			Public: f.public[core.OperationDelete], Execute: f.delete},
	}
}

// fillRecord filters the payload down to the fillable allow-list.
func (f *collectionFamily) fillRecord(payload map[string]interface{}) Record {
	record := Record{}
	for key, value := range payload {
		if f.fillable[key] {
			record[key] = value
		}
	}
	return record
}

func (f *collectionFamily) validateRecord(record Record) error {
	if len(f.spec.SchemaID) == 0 {
		return nil
	}
	return f.schemas.ValidateStruct(map[string]interface{}(record), f.spec.SchemaID)
}

func (f *collectionFamily) notify(operation core.Operation, record Record) {
	if f.notifier == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	f.notifier.Notify(f.spec.Model, operation, payload)
}

// internalError logs the persistence fault with full detail and maps it
// to the generic failure envelope. Storage internals never leak to the
// caller.
func (f *collectionFamily) internalError(ctx context.Context, operation core.Operation, err error) (int, core.Envelope) {
	logger.FromContext(ctx).WithError(err).Errorf("persistence fault on %s %s", operation, f.spec.Model)
	return http.StatusInternalServerError, core.Failure("internal error")
}

func (f *collectionFamily) create(ctx context.Context, request *Request) (int, core.Envelope) {
	record := f.fillRecord(request.Payload)
	if err := f.validateRecord(record); err != nil {
		return http.StatusUnprocessableEntity, core.Failure("invalid " + f.spec.Model + ": " + err.Error())
	}
	created, err := f.store.Insert(ctx, f.spec.Model, record)
	if err != nil {
		return f.internalError(ctx, core.OperationCreate, err)
	}
	f.notify(core.OperationCreate, created)
	return http.StatusCreated, core.Success("successfully created "+f.spec.Model, created)
}

func (f *collectionFamily) read(ctx context.Context, request *Request) (int, core.Envelope) {
	id, err := uuid.Parse(request.ID)
	if err != nil {
		return http.StatusBadRequest, core.Failure("invalid identifier")
	}
	record, err := f.store.Get(ctx, f.spec.Model, id)
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, core.Failure("no such " + f.spec.Model)
	}
	if err != nil {
		return f.internalError(ctx, core.OperationRead, err)
	}
	return http.StatusOK, core.Success("ok", record)
}

func (f *collectionFamily) update(ctx context.Context, request *Request) (int, core.Envelope) {
	id, err := uuid.Parse(request.ID)
	if err != nil {
		return http.StatusBadRequest, core.Failure("invalid identifier")
	}
	record := f.fillRecord(request.Payload)
	if err := f.validateRecord(record); err != nil {
		return http.StatusUnprocessableEntity, core.Failure("invalid " + f.spec.Model + ": " + err.Error())
	}
	updated, err := f.store.Update(ctx, f.spec.Model, id, record)
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, core.Failure("no such " + f.spec.Model)
	}
	if err != nil {
		return f.internalError(ctx, core.OperationUpdate, err)
	}
	f.notify(core.OperationUpdate, updated)
	return http.StatusOK, core.Success("successfully updated "+f.spec.Model, updated)
}

func (f *collectionFamily) delete(ctx context.Context, request *Request) (int, core.Envelope) {
	id, err := uuid.Parse(request.ID)
	if err != nil {
		return http.StatusBadRequest, core.Failure("invalid identifier")
	}
	err = f.store.Delete(ctx, f.spec.Model, id)
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, core.Failure("no such " + f.spec.Model)
	}
	if err != nil {
		return f.internalError(ctx, core.OperationDelete, err)
	}
	f.notify(core.OperationDelete, Record{"id": id.String()})
	return http.StatusOK, core.Success("successfully deleted "+f.spec.Model, nil)
}

func (f *collectionFamily) list(ctx context.Context, request *Request) (int, core.Envelope) {
	records, err := f.store.List(ctx, f.spec.Model)
	if err != nil {
		return f.internalError(ctx, core.OperationList, err)
	}
	return http.StatusOK, core.Success("ok", records)
}
