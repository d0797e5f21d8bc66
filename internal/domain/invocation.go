package domain

// FileInput is one file supplied with an invocation request, staged to a
// per-invocation temp directory before the guest entry runs.
type FileInput struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Bytes       []byte `json:"bytes"`
}

// StagedFile describes a FileInput after it has been written to the
// invocation's temp directory; this is what gets added to the event under
// the "files" key.
type StagedFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Path        string `json:"path"`
	Size        int    `json:"size"`
}

// InvocationRequest is the transient shape submitted to the invocation
// engine. RequestID is assigned by the HTTP dispatcher for log correlation
// and is never part of the wire JSON.
type InvocationRequest struct {
	RequestID     string         `json:"-"`
	LanguageID    Language       `json:"languageId"`
	SourceCode    string         `json:"sourceCode"`
	FunctionName  string         `json:"functionName"`
	Event         map[string]any `json:"event"`
	Files         []FileInput    `json:"files,omitempty"`
	Dependencies  []Dependency   `json:"dependencies,omitempty"`
	JsEvalAsModule bool          `json:"jsEvalAsModule,omitempty"`
	TimeoutMillis int64          `json:"timeoutMillis,omitempty"`
	EnableNetwork bool           `json:"enableNetwork,omitempty"`
	Platform      *Platform      `json:"-"`
}

// HasTimeout reports whether the request specifies a positive timeout; a
// zero or negative value disables the timeout.
func (r *InvocationRequest) HasTimeout() bool {
	return r.TimeoutMillis > 0
}
