package domain

// Language identifies one of the supported guest evaluators.
type Language string

const (
	LanguageJS     Language = "js"
	LanguagePython Language = "python"
	LanguageRuby   Language = "ruby"
)

// IsValid reports whether l names a recognized guest evaluator.
func (l Language) IsValid() bool {
	switch l {
	case LanguageJS, LanguagePython, LanguageRuby:
		return true
	}
	return false
}

// Dependency is a single named guest module supplied either inline or by
// persisted reference.
type Dependency struct {
	Name       string `json:"name"`
	SourceCode string `json:"sourceCode"`
}

// FunctionAsset is the persisted form of an uploaded function: its source,
// its resolved dependency sources, and the metadata needed to construct a
// guest context and locate its entry point.
type FunctionAsset struct {
	ID             string       `json:"id"`
	LanguageID     Language     `json:"languageId"`
	FunctionName   string       `json:"functionName"`
	JsEvalAsModule bool         `json:"jsEvalAsModule"`
	SourceCode     string       `json:"sourceCode"`
	Dependencies   []Dependency `json:"dependencies"`
}

// DependencyNames returns the dependency names in the order they were
// resolved, for the upload response's `dependencies` field.
func (f *FunctionAsset) DependencyNames() []string {
	names := make([]string, len(f.Dependencies))
	for i, d := range f.Dependencies {
		names[i] = d.Name
	}
	return names
}

// UploadManifestDependency names one dependency source in an ingestion
// manifest: exactly one of SourceCode or File should be set.
type UploadManifestDependency struct {
	Name       string `json:"name"`
	SourceCode string `json:"source,omitempty"`
	File       string `json:"file,omitempty"`
}

// UploadManifest is the ingestion-only shape accepted by POST /functions. It
// is resolved into a FunctionAsset by the asset store before persistence.
type UploadManifest struct {
	ID             string                      `json:"id,omitempty"`
	LanguageID     Language                    `json:"languageId"`
	FunctionName   string                      `json:"functionName,omitempty"`
	JsEvalAsModule bool                        `json:"jsEvalAsModule,omitempty"`
	SourceCode     string                      `json:"source,omitempty"`
	SourceFile     string                      `json:"sourceFile,omitempty"`
	Dependencies   []UploadManifestDependency  `json:"dependencies,omitempty"`
}

// Validate checks the structural requirements spelled out for
// UploadManifest: a recognized language, and exactly one of source/
// sourceFile.
func (m *UploadManifest) Validate() error {
	if !m.LanguageID.IsValid() {
		return &InvalidManifestError{Reason: "languageId must be one of js, python, ruby"}
	}
	hasSource := m.SourceCode != ""
	hasFile := m.SourceFile != ""
	if hasSource == hasFile {
		return &InvalidManifestError{Reason: "exactly one of source or sourceFile is required"}
	}
	for _, d := range m.Dependencies {
		if d.Name == "" {
			return &InvalidManifestError{Reason: "dependency name is required"}
		}
		depHasSource := d.SourceCode != ""
		depHasFile := d.File != ""
		if depHasSource == depHasFile {
			return &InvalidManifestError{Reason: "dependency " + d.Name + " requires exactly one of source or file"}
		}
	}
	return nil
}
