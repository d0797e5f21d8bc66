package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelfaas/kestrel/internal/assetstore"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/logging"
)

func (s *Server) handleCreateFunction(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, &domain.InvalidJSONError{Reason: err.Error()})
		return
	}

	manifest, err := assetstore.ParseManifest(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	asset, err := s.assets.ToAsset(s.cwd, manifest)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.assets.Save(asset); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             asset.ID,
		"languageId":     asset.LanguageID,
		"functionName":   asset.FunctionName,
		"jsEvalAsModule": asset.JsEvalAsModule,
		"dependencies":   asset.DependencyNames(),
	})
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	assets, err := s.assets.List()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, len(assets))
	for i, a := range assets {
		out[i] = map[string]any{
			"id":             a.ID,
			"languageId":     a.LanguageID,
			"functionName":   a.FunctionName,
			"jsEvalAsModule": a.JsEvalAsModule,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, &domain.InvalidJSONError{Reason: "missing function id"})
		return
	}

	asset, ok, err := s.assets.Load(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, &domain.FunctionAssetNotFoundError{FunctionID: id})
		return
	}

	// An empty or malformed body is treated as an empty event rather than
	// a request error.
	event := map[string]any{}
	inputSize := 0
	defer r.Body.Close()
	if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
		inputSize = len(raw)
		var parsed map[string]any
		if json.Unmarshal(raw, &parsed) == nil {
			event = parsed
		}
	}

	platform, err := s.resources.PlatformForFunction(asset.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	req := &domain.InvocationRequest{
		RequestID:      requestIDFromContext(r.Context()),
		LanguageID:     asset.LanguageID,
		SourceCode:     asset.SourceCode,
		FunctionName:   asset.FunctionName,
		Event:          event,
		Dependencies:   asset.Dependencies,
		JsEvalAsModule: asset.JsEvalAsModule,
		TimeoutMillis:  defaultInvokeTimeoutMillis,
		EnableNetwork:  true,
		Platform:       platform,
	}

	started := time.Now()
	result, err := s.engine.Invoke(r.Context(), req)
	entry := &logging.RequestLog{
		RequestID:  req.RequestID,
		Function:   asset.FunctionName,
		FunctionID: asset.ID,
		LanguageID: string(asset.LanguageID),
		DurationMs: time.Since(started).Milliseconds(),
		Success:    err == nil,
		InputSize:  inputSize,
		ColdStart:  true,
	}
	if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.IsValid() {
		entry.TraceID = spanCtx.TraceID().String()
		entry.SpanID = spanCtx.SpanID().String()
	}
	if err != nil {
		entry.Error = err.Error()
		logging.Default().Log(entry)
		logging.OpWithTrace(entry.TraceID, entry.SpanID).Error("invocation failed",
			"function_id", entry.FunctionID, "language_id", entry.LanguageID, "error", err)
		writeError(w, err)
		return
	}
	if out, marshalErr := json.Marshal(result); marshalErr == nil {
		entry.OutputSize = len(out)
	}
	logging.Default().Log(entry)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req domain.CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.InvalidJSONError{Reason: err.Error()})
		return
	}
	record, err := s.resources.Create(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resourceView(record))
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	records, err := s.resources.List()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = resourceView(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttachOwner(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, &domain.InvalidJSONError{Reason: "missing resource id"})
		return
	}

	defer r.Body.Close()
	var body domain.AttachOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &domain.InvalidJSONError{Reason: err.Error()})
		return
	}
	if body.FunctionID == "" {
		writeError(w, &domain.InvalidJSONError{Reason: "functionId is required"})
		return
	}

	record, err := s.resources.AttachOwner(id, body.FunctionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if record == nil {
		writeError(w, &domain.ResourceNotFoundError{ID: id})
		return
	}
	writeJSON(w, http.StatusOK, resourceView(record))
}

func resourceView(r *domain.ResourceRecord) map[string]any {
	return map[string]any{
		"id":     r.ID,
		"type":   r.Type,
		"owners": r.Owners,
	}
}
