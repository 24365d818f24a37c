package ipc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDispatchLiteral(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("GET", "/health", func(_ context.Context, _ Request) (any, *Error) {
		return map[string]string{"status": "ok"}, nil
	})

	resp := r.Dispatch(context.Background(), Message{Method: "GET", Path: "/health", RequestID: "r-1"})
	require.True(t, resp.Success)
	assert.Equal(t, "r-1", resp.RequestID)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
}

func TestRouterParams(t *testing.T) {
	r := NewRouter(nil)
	var gotID string
	r.Handle("POST", "/connector-lifecycle/collectors/{connector_id}/start",
		func(_ context.Context, req Request) (any, *Error) {
			gotID = req.Params["connector_id"]
			return nil, nil
		})

	resp := r.Dispatch(context.Background(), Message{
		Method: "POST", Path: "/connector-lifecycle/collectors/filesystem/start",
	})
	require.True(t, resp.Success)
	assert.Equal(t, "filesystem", gotID)
}

func TestRouterUnknownRouteNotFound(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("GET", "/health", func(_ context.Context, _ Request) (any, *Error) { return nil, nil })

	for _, msg := range []Message{
		{Method: "GET", Path: "/nope", RequestID: "a"},
		{Method: "POST", Path: "/health", RequestID: "b"}, // wrong method
	} {
		resp := r.Dispatch(context.Background(), msg)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Err)
		assert.Equal(t, CodeNotFound, resp.Err.Code)
		assert.Equal(t, msg.RequestID, resp.RequestID)
	}
}

func TestRouterHandlerError(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("GET", "/boom", func(_ context.Context, _ Request) (any, *Error) {
		return nil, NewError(CodeExecutableNotFound, "no binary for %s", "fs")
	})

	resp := r.Dispatch(context.Background(), Message{Method: "GET", Path: "/boom"})
	require.False(t, resp.Success)
	assert.Equal(t, CodeExecutableNotFound, resp.Err.Code)
	assert.Contains(t, resp.Err.Message, "fs")
}

func TestRouterRecoverPanic(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("GET", "/panic", func(_ context.Context, _ Request) (any, *Error) {
		panic("handler bug")
	})

	resp := r.Dispatch(context.Background(), Message{Method: "GET", Path: "/panic", RequestID: "p"})
	require.False(t, resp.Success)
	assert.Equal(t, CodeInternalError, resp.Err.Code)
	assert.Equal(t, "p", resp.RequestID)
}

func TestRouterDuplicateRoutePanics(t *testing.T) {
	r := NewRouter(nil)
	h := func(_ context.Context, _ Request) (any, *Error) { return nil, nil }
	r.Handle("GET", "/x/{a}", h)
	assert.Panics(t, func() { r.Handle("GET", "/x/{b}", h) })
}

func TestRouterPassesData(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("POST", "/echo", func(_ context.Context, req Request) (any, *Error) {
		var body map[string]int
		require.NoError(t, json.Unmarshal(req.Data, &body))
		return body, nil
	})

	resp := r.Dispatch(context.Background(), Message{Method: "POST", Path: "/echo", Data: []byte(`{"n":7}`)})
	require.True(t, resp.Success)
	assert.JSONEq(t, `{"n":7}`, string(resp.Data))
}
