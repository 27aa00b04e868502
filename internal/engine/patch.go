package engine

import (
	"encoding/json"
	"fmt"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"

	"tasksms/internal/domain"
)

// patchDocument is the JSON view a patch is applied to. Fields carry no
// omitempty so that "replace" operations always find their target path.
type patchDocument struct {
	GUID        string   `json:"guid"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CreatedBy   string   `json:"created_by"`
	CreatedOn   string   `json:"created_on"`
	ModifiedBy  string   `json:"modified_by"`
	ModifiedOn  string   `json:"modified_on"`
	Groups      []string `json:"groups"`
	Tags        []string `json:"tags"`
}

func newPatchDocument(r domain.TaskResource) patchDocument {
	doc := patchDocument{
		GUID:        r.GUID,
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		CreatedOn:   r.CreatedOn,
		ModifiedBy:  r.ModifiedBy,
		ModifiedOn:  r.ModifiedOn,
		Groups:      r.Groups,
		Tags:        r.Tags,
	}
	if doc.Groups == nil {
		doc.Groups = []string{}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc
}

// applyPatch runs an RFC 6902 document against current. The returned ops are
// the decoded operations, kept for the audit row.
func applyPatch(current patchDocument, raw []byte) (patchDocument, []any, error) {
	var ops []any
	if err := json.Unmarshal(raw, &ops); err != nil {
		return patchDocument{}, nil, &ValidationError{Field: "patch", Message: "patch must be a JSON array of operations", Err: err}
	}
	if len(ops) == 0 {
		return patchDocument{}, nil, invalid("patch", "patch has no operations")
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return patchDocument{}, nil, &ValidationError{Field: "patch", Message: err.Error(), Err: err}
	}
	doc, err := json.Marshal(current)
	if err != nil {
		return patchDocument{}, nil, fmt.Errorf("marshal task document: %w", err)
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return patchDocument{}, nil, &ValidationError{Field: "patch", Message: fmt.Sprintf("apply patch: %v", err), Err: err}
	}
	var out patchDocument
	if err := json.Unmarshal(patched, &out); err != nil {
		return patchDocument{}, nil, &ValidationError{Field: "patch", Message: fmt.Sprintf("patched task is not valid: %v", err), Err: err}
	}
	return out, ops, nil
}
