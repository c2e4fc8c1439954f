package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CategoryAction tags the variant carried by a CategoryPayload.
type CategoryAction string

const (
	CategoryActionCreate CategoryAction = "create"
	CategoryActionRename CategoryAction = "rename"
	CategoryActionDelete CategoryAction = "delete"
	CategoryActionMerge  CategoryAction = "merge"
)

const (
	DefaultCategoryColor = "#6366f1"
	DefaultCategoryIcon  = "Tag"
)

// CategoryChange is one of CreateCategory, RenameCategory, DeleteCategory
// or MergeCategory.
type CategoryChange interface {
	Action() CategoryAction
	validate() error
}

type CreateCategory struct {
	Name  string          `json:"name"`
	Type  TransactionType `json:"type"`
	Color string          `json:"color"`
	Icon  string          `json:"icon"`
}

func (CreateCategory) Action() CategoryAction { return CategoryActionCreate }

func (c CreateCategory) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", "is required")
	}
	if !c.Type.Valid() {
		return Invalid("type", "must be income or expense, got %q", c.Type)
	}
	return nil
}

type RenameCategory struct {
	CategoryID  string `json:"category_id"`
	CurrentName string `json:"current_name"`
	NewName     string `json:"new_name"`
}

func (RenameCategory) Action() CategoryAction { return CategoryActionRename }

func (c RenameCategory) validate() error {
	if c.CategoryID == "" {
		return Invalid("category_id", "is required")
	}
	if strings.TrimSpace(c.NewName) == "" {
		return Invalid("new_name", "is required")
	}
	return nil
}

type DeleteCategory struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
}

func (DeleteCategory) Action() CategoryAction { return CategoryActionDelete }

func (c DeleteCategory) validate() error {
	if c.CategoryID == "" {
		return Invalid("category_id", "is required")
	}
	return nil
}

type MergeCategory struct {
	SourceCategoryID   string `json:"source_category_id"`
	SourceCategoryName string `json:"source_category_name"`
	TargetCategoryID   string `json:"target_category_id"`
	TargetCategoryName string `json:"target_category_name"`
}

func (MergeCategory) Action() CategoryAction { return CategoryActionMerge }

func (c MergeCategory) validate() error {
	if c.SourceCategoryID == "" {
		return Invalid("source_category_id", "is required")
	}
	if c.TargetCategoryID == "" {
		return Invalid("target_category_id", "is required")
	}
	if c.SourceCategoryID == c.TargetCategoryID {
		return Invalid("target_category_id", "cannot merge a category into itself")
	}
	return nil
}

// CategoryPayload proposes a single category change. On the wire the change
// is flattened next to an "action" discriminator.
type CategoryPayload struct {
	Change CategoryChange
}

func (p *CategoryPayload) ProposalType() ProposalType { return ProposalTypeCategory }

func (p *CategoryPayload) Validate() error {
	if p.Change == nil {
		return Invalid("action", "is required")
	}
	return p.Change.validate()
}

// Change values are plain structs, so a shallow copy is a deep copy.
func (p *CategoryPayload) Clone() Payload {
	c := *p
	return &c
}

func (p CategoryPayload) MarshalJSON() ([]byte, error) {
	if p.Change == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(p.Change)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	action, _ := json.Marshal(p.Change.Action())
	fields["action"] = action
	return json.Marshal(fields)
}

func (p *CategoryPayload) UnmarshalJSON(data []byte) error {
	var head struct {
		Action CategoryAction `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Invalid("payload", "%v", err)
	}

	var change CategoryChange
	var err error
	switch head.Action {
	case CategoryActionCreate:
		var c CreateCategory
		err = decodeWithAction(data, &c)
		change = c
	case CategoryActionRename:
		var c RenameCategory
		err = decodeWithAction(data, &c)
		change = c
	case CategoryActionDelete:
		var c DeleteCategory
		err = decodeWithAction(data, &c)
		change = c
	case CategoryActionMerge:
		var c MergeCategory
		err = decodeWithAction(data, &c)
		change = c
	default:
		return Invalid("action", "unknown category action %q", head.Action)
	}
	if err != nil {
		return Invalid("payload", "%v", err)
	}
	p.Change = change
	return nil
}

// decodeWithAction decodes strictly while tolerating the discriminator field.
func decodeWithAction(data []byte, v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	delete(fields, "action")
	rest, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(rest))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
