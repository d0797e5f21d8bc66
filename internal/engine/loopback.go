package engine

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/netproxy"
)

// netEnvelope is the JSON shape POSTed by the Python/Ruby net preambles
// (see internal/bridge) to the loopback endpoint's "/" path.
type netEnvelope struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// kvEnvelope is POSTed to "/kv" by the Python/Ruby platform preambles.
type kvEnvelope struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// sqlEnvelope is POSTed to "/sql" by the Python/Ruby platform preambles.
type sqlEnvelope struct {
	Op    string `json:"op"`
	Query string `json:"query"`
	Args  []any  `json:"args"`
}

// loopbackProxy is a short-lived, invocation-scoped HTTP server bound to
// 127.0.0.1:0 that relays a subprocess guest's net and platform calls to
// the shared netproxy.Proxy and domain.Platform. It exists because an
// out-of-process guest cannot be handed a live Go closure; this is the
// loopback-endpoint resolution of the Python/Ruby Open Questions documented
// in SPEC_FULL.md §4.G.
type loopbackProxy struct {
	listener net.Listener
	server   *http.Server
	netURL   string
	kvURL    string
	sqlURL   string
}

func startLoopbackProxy(proxy *netproxy.Proxy, platform *domain.Platform) (*loopbackProxy, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		raw, err := readBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var env netEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := proxy.HTTP(env.Method, env.URL, env.Body, env.Headers)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":  0,
				"headers": map[string]string{},
				"body":    "",
				"error":   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/kv", func(w http.ResponseWriter, r *http.Request) {
		raw, err := readBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var env kvEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kv := platform.Kv
		switch env.Op {
		case "get":
			value, found := kv.Get(env.Key)
			writeJSON(w, http.StatusOK, map[string]any{"found": found, "value": value})
		case "put":
			kv.Put(env.Key, env.Value)
			writeJSON(w, http.StatusOK, map[string]any{})
		case "delete":
			kv.Delete(env.Key)
			writeJSON(w, http.StatusOK, map[string]any{})
		default:
			http.Error(w, "unknown kv op", http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/sql", func(w http.ResponseWriter, r *http.Request) {
		raw, err := readBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var env sqlEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sql := platform.Sql
		var result any
		var callErr error
		if env.Op == "exec" {
			result, callErr = sql.Exec(env.Query, env.Args...)
		} else {
			result, callErr = sql.Query(env.Query, env.Args...)
		}
		if callErr != nil {
			writeJSON(w, http.StatusOK, map[string]any{"error": callErr.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	})

	srv := &http.Server{Handler: mux}
	addr := "http://" + ln.Addr().String()
	lp := &loopbackProxy{
		listener: ln,
		server:   srv,
		netURL:   addr + "/",
		kvURL:    addr + "/kv",
		sqlURL:   addr + "/sql",
	}
	go srv.Serve(ln)
	return lp, nil
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 16<<20))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (lp *loopbackProxy) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = lp.server.Shutdown(ctx)
}
