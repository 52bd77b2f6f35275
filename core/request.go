package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/memback/memback/include"
	"github.com/memback/memback/query"
	"github.com/memback/memback/storage"
	"github.com/memback/memback/types"
	"github.com/memback/memback/update"
)

// Method identifies the kind of request.
type Method string

const (
	MethodCreate Method = "create"
	MethodFetch  Method = "fetch"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
)

// Request is a normalized object API request. A fetch without an object id
// is a query; its parameters (where, include, count, skip, limit) travel in
// Data.
type Request struct {
	Method    Method         `json:"method" yaml:"method"`
	ClassName string         `json:"className" yaml:"className"`
	ObjectID  string         `json:"objectId,omitempty" yaml:"objectId"`
	Data      map[string]any `json:"data,omitempty" yaml:"data"`
}

// Response is the envelope returned for every request.
type Response struct {
	Status int            `json:"status" yaml:"status"`
	Body   map[string]any `json:"body" yaml:"body"`
}

// Error codes carried in error response bodies, matching the backend API
// this engine substitutes for.
const (
	CodeObjectNotFound = 101
	CodeInvalidQuery   = 102
	CodeScriptFailed   = 141
)

const defaultLimit = 100

// Handle runs a single request to completion: hooks, mutation or matching,
// masking, and response shaping. Every outcome including failure is reported
// through the envelope; there are no retries.
func (s *Store) Handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case MethodCreate:
		return s.create(ctx, req)
	case MethodFetch:
		if req.ObjectID == "" {
			return s.find(ctx, req)
		}
		return s.get(ctx, req)
	case MethodUpdate:
		return s.update(ctx, req)
	case MethodDelete:
		return s.remove(ctx, req)
	default:
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, fmt.Sprintf("invalid method %q", req.Method))
	}
}

func errorResponse(status, code int, message string) *Response {
	return &Response{
		Status: status,
		Body:   map[string]any{"code": code, "error": message},
	}
}

func notFoundResponse() *Response {
	return errorResponse(http.StatusNotFound, CodeObjectNotFound, "object not found")
}

func (s *Store) create(ctx context.Context, req *Request) *Response {
	payload, err := s.runHook(ctx, req.ClassName, BeforeSave, types.Copy(req.Data))
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeScriptFailed, err.Error())
	}
	doc, ops, err := update.Extract(payload)
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	id := s.newID()
	now := s.now().UTC()
	doc[types.FieldObjectID] = id
	doc[types.FieldCreatedAt] = now
	doc[types.FieldUpdatedAt] = now
	relations, err := update.Apply(doc, ops)
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	s.maskFields(req.ClassName, relations)
	if err := s.storage.Put(ctx, req.ClassName, id, doc); err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	body := s.encode(req.ClassName, doc)
	delete(body, types.FieldUpdatedAt)
	return &Response{Status: http.StatusCreated, Body: body}
}

func (s *Store) update(ctx context.Context, req *Request) *Response {
	doc, err := s.storage.Get(ctx, req.ClassName, req.ObjectID)
	if errors.Is(err, storage.ErrNotFound) {
		return notFoundResponse()
	}
	literal, ops, err := update.Extract(req.Data)
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	for k, v := range literal {
		doc[k] = v
	}
	doc[types.FieldUpdatedAt] = s.now().UTC()
	relations, err := update.Apply(doc, ops)
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	doc, err = s.runHook(ctx, req.ClassName, BeforeSave, doc)
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeScriptFailed, err.Error())
	}
	s.maskFields(req.ClassName, relations)
	if err := s.storage.Put(ctx, req.ClassName, req.ObjectID, doc); err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	body := s.encode(req.ClassName, doc)
	delete(body, types.FieldCreatedAt)
	delete(body, types.FieldObjectID)
	return &Response{Status: http.StatusOK, Body: body}
}

func (s *Store) remove(ctx context.Context, req *Request) *Response {
	doc, err := s.storage.Get(ctx, req.ClassName, req.ObjectID)
	if err == nil {
		if _, err := s.runHook(ctx, req.ClassName, BeforeDelete, doc); err != nil {
			return errorResponse(http.StatusBadRequest, CodeScriptFailed, err.Error())
		}
		if err := s.storage.Delete(ctx, req.ClassName, req.ObjectID); err != nil {
			return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
		}
	}
	// Deleting an absent id still reports success. Documented policy, see
	// DESIGN.md.
	return &Response{Status: http.StatusOK, Body: map[string]any{}}
}

func (s *Store) get(ctx context.Context, req *Request) *Response {
	doc, err := s.storage.Get(ctx, req.ClassName, req.ObjectID)
	if errors.Is(err, storage.ErrNotFound) {
		return notFoundResponse()
	}
	return &Response{Status: http.StatusOK, Body: s.encode(req.ClassName, doc)}
}

func (s *Store) find(ctx context.Context, req *Request) *Response {
	where, _ := req.Data["where"].(map[string]any)
	results, err := query.Search(ctx, s.storage, req.ClassName, where)
	if err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	if isTrue(req.Data["count"]) {
		return &Response{Status: http.StatusOK, Body: map[string]any{"count": len(results)}}
	}
	includes, _ := req.Data["include"].(string)
	if err := include.Apply(ctx, s.storage, results, includes); err != nil {
		return errorResponse(http.StatusBadRequest, CodeInvalidQuery, err.Error())
	}
	encoded := make([]any, 0, len(results))
	for _, doc := range results {
		encoded = append(encoded, s.encode(req.ClassName, doc))
	}
	window := paginate(encoded, req.Data["skip"], req.Data["limit"])
	return &Response{Status: http.StatusOK, Body: map[string]any{"results": window}}
}

func isTrue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	n, ok := types.Number(v)
	return ok && n != 0
}

// paginate slices the stable result order with skip and limit. The default
// limit applies when none is given.
func paginate(results []any, skip, limit any) []any {
	start := 0
	if n, ok := types.Number(skip); ok {
		start = int(n)
	}
	count := defaultLimit
	if n, ok := types.Number(limit); ok {
		count = int(n)
	}
	if start < 0 {
		start = 0
	}
	if start > len(results) {
		start = len(results)
	}
	if count < 0 {
		count = 0
	}
	end := start + count
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}
