package backend

import (
	"encoding/json"
	"fmt"
)

// AnnotationTypes are the annotation levels that carry saved queries.
var AnnotationTypes = []string{"utterance", "word", "syllable", "phone"}

// Corpus is the server-side status of a corpus.
type Corpus struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	InputFormat   string `json:"input_format"`
	CorpusType    string `json:"corpus_type"`
	Imported      bool   `json:"imported"`
	Busy          bool   `json:"busy"`
	CurrentTaskID string `json:"current_task_id"`
}

// Property is a named, typed annotation property. The API encodes it as a
// two-element array: ["label", "str"].
type Property struct {
	Name string
	Type string
}

// UnmarshalJSON accepts ["name", "type"], ["name"] or a bare "name".
func (p *Property) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		p.Name = name
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("property must be a string or array: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("property array is empty")
	}
	if err := json.Unmarshal(parts[0], &p.Name); err != nil {
		return fmt.Errorf("property name: %w", err)
	}
	if len(parts) > 1 {
		// type may be any JSON scalar; keep its textual form
		var typ string
		if err := json.Unmarshal(parts[1], &typ); err != nil {
			typ = string(parts[1])
		}
		p.Type = typ
	}
	return nil
}

// MarshalJSON writes the two-element array form.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{p.Name, p.Type})
}

// Hierarchy describes the annotation structure of an imported corpus.
type Hierarchy struct {
	AnnotationTypes []string              `json:"annotation_types"`
	TypeProperties  map[string][]Property `json:"type_properties"`
	TokenProperties map[string][]Property `json:"token_properties"`
	SubsetTypes     map[string][]string   `json:"subset_types"`
	SubsetTokens    map[string][]string   `json:"subset_tokens"`
}

// QuerySummary is a saved query listed for an annotation type.
type QuerySummary struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	AnnotationType string `json:"annotation_type"`
	Running        bool   `json:"running"`
}

// Permission is a user's access to one corpus.
type Permission struct {
	CanQuery           bool `json:"can_query"`
	CanEnrich          bool `json:"can_enrich"`
	CanAccessDatabase  bool `json:"can_access_database"`
	CanEditAnnotations bool `json:"can_annotate"`
}

// User is the authenticated account with its per-corpus permissions.
type User struct {
	ID                int                   `json:"id"`
	Username          string                `json:"username"`
	IsSuperuser       bool                  `json:"is_superuser"`
	CorpusPermissions map[string]Permission `json:"corpus_permissions"`
}

// Permission returns the user's permission for corpusID. Superusers are
// granted everything.
func (u User) Permission(corpusID string) (Permission, bool) {
	if u.IsSuperuser {
		return Permission{CanQuery: true, CanEnrich: true, CanAccessDatabase: true, CanEditAnnotations: true}, true
	}
	p, ok := u.CorpusPermissions[corpusID]
	return p, ok
}

// TaskStatus is the state of a background job such as an import.
type TaskStatus struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Failed reports whether the task finished with an error.
func (t TaskStatus) Failed() bool {
	return t.Status == "FAILURE" || t.Error != ""
}
