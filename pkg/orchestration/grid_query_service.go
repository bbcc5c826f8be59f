// Package orchestration exposes the query driver over a Connect RPC
// surface. It replaces the teacher's Arrow-Flight passthrough
// (GridQueryServiceHandler.QueryGrid streaming ArrowRecordBatch chunks
// fetched from a separate compute engine over IPC) with the real thing:
// this module evaluates the MDX statement itself via internal/query,
// so there's no second engine to call out to and nothing arrow-shaped
// to relay.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/query"
	"mdxgrid/evaluator/internal/resultcache"
)

// QueryRequest is the wire request for GridQueryServiceHandler.Execute.
// Statement is a parsed MDX SELECT; producing one from MDX text is
// outside this module's scope (spec.md §1 names the lexer/grammar as
// an external collaborator), so the caller is expected to have parsed
// MDXText into Statement already. MDXText is retained purely as the
// cache key and audit-log input.
type QueryRequest struct {
	UserName  string          `json:"user_name"`
	MDXText   string          `json:"mdx_text"`
	Statement query.Statement `json:"statement"`
}

// QueryResponse carries the evaluated grid plus whether it was served
// from resultcache.
type QueryResponse struct {
	FromCache bool               `json:"from_cache"`
	Entry     *resultcache.Entry `json:"entry"`
}

// Clock lets tests supply a fixed time instead of this package calling
// time.Now() directly.
type Clock func() time.Time

// GridQueryServiceHandler evaluates incoming MDX statements via a
// query.Driver, optionally read-through caching the evaluated grid in
// resultcache.
type GridQueryServiceHandler struct {
	driver *query.Driver
	cache  *resultcache.Cache
	ttl    time.Duration
	now    Clock
}

// NewGridQueryServiceHandler builds a handler. cache may be nil to
// disable caching entirely (every call recomputes).
func NewGridQueryServiceHandler(driver *query.Driver, cache *resultcache.Cache, ttl time.Duration) *GridQueryServiceHandler {
	return &GridQueryServiceHandler{driver: driver, cache: cache, ttl: ttl, now: time.Now}
}

// Execute implements the RPC method: evaluate req.Msg.Statement on
// behalf of req.Msg.UserName, serving from resultcache when possible.
func (h *GridQueryServiceHandler) Execute(
	ctx context.Context,
	req *connect.Request[QueryRequest],
) (*connect.Response[QueryResponse], error) {
	msg := req.Msg
	cacheGid := cubeGidHint(msg.Statement)
	key := resultcache.NewKey(cacheGid, msg.UserName, msg.MDXText)

	if h.cache != nil {
		if entry, found, err := h.cache.Get(ctx, key); err == nil && found {
			return connect.NewResponse(&QueryResponse{FromCache: true, Entry: entry}), nil
		}
	}

	result, err := h.driver.Execute(ctx, msg.UserName, msg.Statement)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("orchestration: evaluate statement: %w", err))
	}

	axes := make([]resultcache.AxisSnapshot, len(result.Axes))
	for i, a := range result.Axes {
		axes[i] = resultcache.AxisSnapshot{Number: a.Number, Tuples: a.Set.Tuples}
	}
	entry := resultcache.NewEntry(h.now().Unix(), axes, result.Cells)

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, entry, h.ttl); err != nil {
			return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("orchestration: cache write: %w", err))
		}
	}

	return connect.NewResponse(&QueryResponse{FromCache: false, Entry: entry}), nil
}

// cubeGidHint best-effort extracts a gid from the statement's cube
// segment for the cache key; a name-based cube segment (the common
// case) contributes 0, relying on the MDX text hash for uniqueness.
func cubeGidHint(stmt query.Statement) domain.Gid {
	if stmt.Cube.Kind == ast.SegGid {
		return domain.Gid(stmt.Cube.Gid)
	}
	return 0
}
