package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Request is the decoded form a handler receives. Params holds values bound
// to {name} segments of the registered route.
type Request struct {
	Method    string
	Path      string
	Params    map[string]string
	Data      json.RawMessage
	RequestID string
}

// Handler processes one request. It returns either a result value (marshaled
// into Response.Data) or a structured *Error; never both.
type Handler func(ctx context.Context, req Request) (any, *Error)

type route struct {
	method   string
	segments []segment
	h        Handler
}

type segment struct {
	literal string
	param   string // non-empty for {name} segments
}

// Router maps (method, path) pairs to handlers. Registration is explicit and
// happens once at startup; there is no convention-based discovery.
type Router struct {
	routes []route
	log    *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// Handle registers a handler for method and a path template. Templates are
// literal segments or {name} placeholders, e.g.
// "/connector-lifecycle/collectors/{id}/start". Duplicate registration panics
// since the table is built once at startup.
func (r *Router) Handle(method, path string, h Handler) {
	segs := splitPath(path)
	parsed := make([]segment, len(segs))
	for i, s := range segs {
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			parsed[i] = segment{param: s[1 : len(s)-1]}
		} else {
			parsed[i] = segment{literal: s}
		}
	}
	for _, existing := range r.routes {
		if existing.method == method && sameShape(existing.segments, parsed) {
			panic(fmt.Sprintf("ipc: duplicate route %s %s", method, path))
		}
	}
	r.routes = append(r.routes, route{method: method, segments: parsed, h: h})
}

// Dispatch resolves msg to a handler and runs it. Unknown routes yield
// NOT_FOUND; handler panics are recovered and converted to INTERNAL_ERROR so
// a faulty handler can never take the server down.
func (r *Router) Dispatch(ctx context.Context, msg Message) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic", "method", msg.Method, "path", msg.Path, "panic", rec)
			resp = Fail(msg.RequestID, NewError(CodeInternalError, "internal handler fault"))
		}
	}()

	segs := splitPath(msg.Path)
	for _, rt := range r.routes {
		if rt.method != msg.Method {
			continue
		}
		params, ok := match(rt.segments, segs)
		if !ok {
			continue
		}
		req := Request{
			Method:    msg.Method,
			Path:      msg.Path,
			Params:    params,
			Data:      msg.Data,
			RequestID: msg.RequestID,
		}
		data, herr := rt.h(ctx, req)
		if herr != nil {
			return Fail(msg.RequestID, herr)
		}
		return OK(msg.RequestID, data)
	}
	return Fail(msg.RequestID, NewError(CodeNotFound, "no route for %s %s", msg.Method, msg.Path))
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func match(tmpl []segment, segs []string) (map[string]string, bool) {
	if len(tmpl) != len(segs) {
		return nil, false
	}
	var params map[string]string
	for i, t := range tmpl {
		if t.param != "" {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[t.param] = segs[i]
			continue
		}
		if t.literal != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// sameShape treats all params as equal so "/a/{x}" conflicts with "/a/{y}".
func sameShape(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		aParam := a[i].param != ""
		bParam := b[i].param != ""
		if aParam != bParam {
			return false
		}
		if !aParam && a[i].literal != b[i].literal {
			return false
		}
	}
	return true
}
