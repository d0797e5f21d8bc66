// Package engine implements the invocation engine:
// a bounded worker pool dispatches each invocation to a fresh guest
// context (a goja.Runtime for JS, a throwaway subprocess for Python/Ruby),
// stages any uploaded files, wires the virtual network proxy and resource
// platform bindings, and enforces the invocation's timeout by cancelling
// the in-flight call and, for JS, interrupting the runtime directly.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/egress"
	"github.com/kestrelfaas/kestrel/internal/logging"
	"github.com/kestrelfaas/kestrel/internal/metrics"
	"github.com/kestrelfaas/kestrel/internal/netproxy"
	"github.com/kestrelfaas/kestrel/internal/tracing"
)

// Engine dispatches invocation requests across the three supported guest
// languages. A single Engine is shared across all invocations; everything
// per-call is created fresh inside doInvoke.
type Engine struct {
	pool       *pool
	js         *jsGuest
	python     *subprocessGuest
	ruby       *subprocessGuest
	proxy      *netproxy.Proxy
	stagingDir string
}

// New constructs an Engine whose virtual network proxy enforces filter.
// stagingDir is the parent directory for per-invocation file staging (see
// internal/engine/files.go); an empty string uses the OS default temp dir.
func New(filter *egress.Filter, stagingDir string) *Engine {
	proxy := netproxy.New(filter)
	return &Engine{
		pool:       newPool(),
		js:         newJSGuest(proxy),
		python:     newPythonGuest(),
		ruby:       newRubyGuest(),
		proxy:      proxy,
		stagingDir: stagingDir,
	}
}

type invokeOutcome struct {
	value any
	err   error
}

// Invoke runs req to completion, submitting it to the worker pool and
// waiting up to req.TimeoutMillis (if set). On timeout it cancels the
// invocation's context, interrupts a live JS runtime if one exists, and
// returns domain.InvocationTimeoutError once the cancelled task actually
// exits (so the pool never loses track of an active worker).
func (e *Engine) Invoke(ctx context.Context, req *domain.InvocationRequest) (any, error) {
	if !req.LanguageID.IsValid() {
		return nil, &domain.InvalidManifestError{Reason: fmt.Sprintf("unsupported language %q", req.LanguageID)}
	}

	ctx, span := tracing.Tracer().Start(ctx, "engine.Invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("kestrel.language", string(req.LanguageID)),
		attribute.Int64("kestrel.timeout_ms", req.TimeoutMillis),
		// every invocation constructs a fresh guest context, so there is no
		// warm path to distinguish from a cold one.
		attribute.Bool("kestrel.cold_start", true),
	)

	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()

	var rtPtr atomic.Pointer[goja.Runtime]
	resultCh := make(chan invokeOutcome, 1)

	started := time.Now()
	e.pool.submit(func() {
		e.pool.markBusy(1)
		defer e.pool.markBusy(-1)
		value, err := e.doInvoke(ctx2, req, func(rt *goja.Runtime) { rtPtr.Store(rt) })
		resultCh <- invokeOutcome{value, err}
	})

	record := func(err error) {
		metrics.Default().RecordInvocation(string(req.LanguageID), time.Since(started), err == nil)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if !req.HasTimeout() {
		r := <-resultCh
		record(r.err)
		return r.value, r.err
	}

	timer := time.NewTimer(time.Duration(req.TimeoutMillis) * time.Millisecond)
	defer timer.Stop()
	select {
	case r := <-resultCh:
		record(r.err)
		return r.value, r.err
	case <-timer.C:
		cancel()
		if rt := rtPtr.Load(); rt != nil {
			rt.Interrupt("invocation timed out")
		}
		<-resultCh
		logging.Op().Warn("invocation timed out", "requestId", req.RequestID, "timeoutMillis", req.TimeoutMillis)
		timeoutErr := &domain.InvocationTimeoutError{Millis: req.TimeoutMillis}
		record(timeoutErr)
		return nil, timeoutErr
	}
}

// doInvoke runs the three-stage sequence for a single
// request: stage files, augment the event, then dispatch by language.
func (e *Engine) doInvoke(ctx context.Context, req *domain.InvocationRequest, rtOut func(*goja.Runtime)) (any, error) {
	_, staged, cleanup, err := stageFiles(e.stagingDir, req.Files)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	event := make(map[string]any, len(req.Event)+1)
	for k, v := range req.Event {
		event[k] = v
	}
	if len(staged) > 0 {
		files := make([]any, len(staged))
		for i, f := range staged {
			files[i] = map[string]any{
				"name":        f.Name,
				"contentType": f.ContentType,
				"path":        f.Path,
				"size":        f.Size,
			}
		}
		event["files"] = files
	}

	switch req.LanguageID {
	case domain.LanguageJS:
		deadline := time.Now().Add(5 * time.Minute)
		if req.HasTimeout() {
			deadline = time.Now().Add(time.Duration(req.TimeoutMillis) * time.Millisecond)
		}
		return e.js.invoke(req, event, rtOut, deadline)
	case domain.LanguagePython, domain.LanguageRuby:
		needsLoopback := req.EnableNetwork || req.Platform != nil
		var lp *loopbackProxy
		if needsLoopback {
			var err error
			lp, err = startLoopbackProxy(e.proxy, req.Platform)
			if err != nil {
				return nil, fmt.Errorf("start loopback proxy: %w", err)
			}
			defer lp.stop()
		}
		guest := e.python
		if req.LanguageID == domain.LanguageRuby {
			guest = e.ruby
		}
		return guest.invoke(ctx, req, event, lp)
	default:
		return nil, &domain.FunctionNotFoundError{LanguageID: string(req.LanguageID), FunctionName: req.FunctionName}
	}
}

func decodeJSONAny(payload string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, err
	}
	return v, nil
}
