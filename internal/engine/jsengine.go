package engine

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/kestrelfaas/kestrel/internal/bridge"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/netproxy"
)

// jsGuest runs JS function assets in-process on a fresh goja.Runtime per
// invocation — no runtime is ever reused across calls, so one guest's
// globals can never leak into another's.
type jsGuest struct {
	proxy *netproxy.Proxy
}

func newJSGuest(proxy *netproxy.Proxy) *jsGuest {
	return &jsGuest{proxy: proxy}
}

// invoke builds a fresh runtime, wires require()/net if requested, runs
// the asset's source (as a CommonJS module or as a plain script per
// req.JsEvalAsModule), calls the named export with event, and pumps any
// returned promise to settlement. rtOut receives the live *goja.Runtime
// the instant it exists so the caller can Interrupt() it on timeout.
func (g *jsGuest) invoke(req *domain.InvocationRequest, event map[string]any, rtOut func(*goja.Runtime), deadline time.Time) (any, error) {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	rtOut(rt)

	if req.EnableNetwork {
		rt.Set("__kestrel_net_http", g.netBinding(rt))
		if _, err := rt.RunString(bridge.JSNetShimSource); err != nil {
			return nil, &domain.GuestEvaluationError{Cause: err}
		}
	}

	requireFn := g.buildRequire(rt, req.Dependencies)
	rt.Set("require", requireFn)

	if req.Platform != nil {
		rt.Set("platform", g.platformBinding(rt, req.Platform))
	}

	var target goja.Value
	if req.JsEvalAsModule {
		exports, err := g.runModule(rt, req.SourceCode, "<function>", requireFn)
		if err != nil {
			return nil, &domain.GuestEvaluationError{Cause: err}
		}
		target = exports.ToObject(rt).Get(req.FunctionName)
	} else {
		if _, err := rt.RunString(req.SourceCode); err != nil {
			return nil, &domain.GuestEvaluationError{Cause: err}
		}
		target = rt.Get(req.FunctionName)
	}

	callable, ok := goja.AssertFunction(target)
	if !ok {
		return nil, &domain.FunctionNotFoundError{LanguageID: string(domain.LanguageJS), FunctionName: req.FunctionName}
	}

	result, err := callable(goja.Undefined(), rt.ToValue(event))
	if err != nil {
		return nil, &domain.GuestEvaluationError{Cause: err}
	}

	settled, err := pumpPromise(rt, result, deadline)
	if err != nil {
		return nil, err
	}
	return settled.Export(), nil
}

// runModule wraps src in the CommonJS (exports, module, require) form,
// executes it once, and returns its module.exports.
func (g *jsGuest) runModule(rt *goja.Runtime, src, name string, requireFn func(string) goja.Value) (goja.Value, error) {
	prog, err := goja.Compile(name, bridge.JSModuleWrapper(src), false)
	if err != nil {
		return nil, err
	}
	wrapperFn, err := rt.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapperFn)
	if !ok {
		return nil, fmt.Errorf("module wrapper for %s did not evaluate to a function", name)
	}

	exportsObj := rt.NewObject()
	moduleObj := rt.NewObject()
	moduleObj.Set("exports", exportsObj)
	if _, err := fn(goja.Undefined(), exportsObj, moduleObj, rt.ToValue(requireFn)); err != nil {
		return nil, err
	}
	return moduleObj.Get("exports"), nil
}

// buildRequire returns the require(name) implementation backed by the
// asset's declared dependencies, caching each module's exports after its
// first evaluation.
func (g *jsGuest) buildRequire(rt *goja.Runtime, deps []domain.Dependency) func(string) goja.Value {
	sources := make(map[string]string, len(deps))
	for _, d := range deps {
		sources[d.Name] = d.SourceCode
	}
	cache := map[string]goja.Value{}

	var requireFn func(string) goja.Value
	requireFn = func(name string) goja.Value {
		if v, ok := cache[name]; ok {
			return v
		}
		src, ok := sources[name]
		if !ok {
			panic(rt.NewGoError(&domain.ModuleNotFoundError{Name: name}))
		}
		exports, err := g.runModule(rt, src, name, requireFn)
		if err != nil {
			panic(err)
		}
		cache[name] = exports
		return exports
	}
	return requireFn
}

// netBinding is the single low-level host function the JS net shim calls
// into. It performs the request through the shared virtual network proxy,
// which applies egress enforcement before connecting.
func (g *jsGuest) netBinding(rt *goja.Runtime) func(method, url string, body, headers goja.Value) goja.Value {
	return func(method, url string, body, headers goja.Value) goja.Value {
		bodyStr := ""
		if body != nil && !goja.IsNull(body) && !goja.IsUndefined(body) {
			bodyStr = body.String()
		}
		hdrs := map[string]string{}
		if headers != nil && !goja.IsNull(headers) && !goja.IsUndefined(headers) {
			if m, ok := headers.Export().(map[string]interface{}); ok {
				for k, v := range m {
					hdrs[k] = fmt.Sprintf("%v", v)
				}
			}
		}
		resp, err := g.proxy.HTTP(method, url, bodyStr, hdrs)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.ToValue(resp)
	}
}

// platformBinding exposes the per-function Kv/Sql bindings natively, since
// a JS guest runs in-process and needs no loopback relay: calls simply
// reach into the same req.Platform the HTTP dispatcher assembled.
func (g *jsGuest) platformBinding(rt *goja.Runtime, platform *domain.Platform) map[string]any {
	return map[string]any{
		"kv": map[string]any{
			"get": func(key string) goja.Value {
				value, found := platform.Kv.Get(key)
				if !found {
					return goja.Null()
				}
				return rt.ToValue(value)
			},
			"put": func(key string, value any) {
				platform.Kv.Put(key, value)
			},
			"delete": func(key string) {
				platform.Kv.Delete(key)
			},
		},
		"sql": map[string]any{
			"query": func(query string, args ...any) goja.Value {
				result, err := platform.Sql.Query(query, args...)
				if err != nil {
					panic(rt.NewGoError(err))
				}
				return rt.ToValue(result)
			},
			"exec": func(query string, args ...any) goja.Value {
				result, err := platform.Sql.Exec(query, args...)
				if err != nil {
					panic(rt.NewGoError(err))
				}
				return rt.ToValue(result)
			},
		},
	}
}

// pumpPromise waits for v (if it is a promise) to settle, giving goja a
// chance to drain its microtask queue between polls. Guest code here only
// ever produces promises that settle synchronously (Promise.resolve/then
// chains in the fetch shim) since no timers are implemented, so this loop
// is expected to exit within its first few iterations; the deadline
// guards against a guest returning a promise that never resolves.
func pumpPromise(rt *goja.Runtime, v goja.Value, deadline time.Time) (goja.Value, error) {
	promise, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	for {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result(), nil
		case goja.PromiseStateRejected:
			return nil, &domain.GuestEvaluationError{Cause: fmt.Errorf("%v", promise.Result())}
		}
		if time.Now().After(deadline) {
			return nil, &domain.GuestEvaluationError{Cause: fmt.Errorf("promise did not settle before timeout")}
		}
		rt.RunString("")
		time.Sleep(time.Millisecond)
	}
}
