package action

import (
	"fmt"
	"strings"

	"github.com/aura-assistant/aura-core/internal/apptype"
)

// Validate checks one raw action map against the vocabulary and converts
// it to a typed Action. It fails with UnknownAction for names outside the
// vocabulary, MissingField for absent required fields, and EmptyField for
// present-but-blank ones.
func Validate(raw map[string]any) (apptype.Action, error) {
	var out apptype.Action

	name, err := stringField(raw, "action")
	if err != nil {
		return out, err
	}
	if name == "" {
		// Models sometimes label the action "kind" instead of "action".
		if name, err = stringField(raw, "kind"); err != nil {
			return out, err
		}
	}
	if name == "" {
		return out, apptype.NewUnknownAction("")
	}
	kind, ok := CanonicalKind(name)
	if !ok {
		return out, apptype.NewUnknownAction(name)
	}
	out.Kind = kind

	spec := fieldSpecs[kind]
	for _, field := range spec.required {
		if err := requirePresent(raw, field); err != nil {
			return out, err
		}
	}
	for _, group := range spec.oneOf {
		if err := requireOneOf(raw, group); err != nil {
			return out, err
		}
	}

	if out.List, err = stringField(raw, "list"); err != nil {
		return out, err
	}
	if out.ToList, err = stringField(raw, "to_list"); err != nil {
		return out, err
	}
	if out.Task, err = stringField(raw, "task"); err != nil {
		return out, err
	}
	if out.Title, err = stringField(raw, "title"); err != nil {
		return out, err
	}
	if out.NewTitle, err = stringField(raw, "new_title"); err != nil {
		return out, err
	}
	if out.Pattern, err = stringField(raw, "pattern"); err != nil {
		return out, err
	}
	if out.Text, err = stringField(raw, "text"); err != nil {
		return out, err
	}
	if out.Question, err = stringField(raw, "question"); err != nil {
		return out, err
	}
	if out.Pending, err = stringField(raw, "pending"); err != nil {
		return out, err
	}
	if out.City, err = stringField(raw, "city"); err != nil {
		return out, err
	}
	if out.Profession, err = stringField(raw, "profession"); err != nil {
		return out, err
	}
	if out.Tasks, err = stringListField(raw, "tasks"); err != nil {
		return out, err
	}
	if out.ByIndex, err = intField(raw, "by_index"); err != nil {
		return out, err
	}
	if fuzzy, ok := raw["fuzzy"].(bool); ok {
		out.Fuzzy = fuzzy
	}

	// Creating defaults to a list when the model omits the type.
	if kind == apptype.ActionCreate {
		rawType, err := stringField(raw, "type")
		if err != nil {
			return out, err
		}
		if rawType == "" {
			rawType = string(apptype.KindList)
		}
		if !apptype.ValidKind(apptype.Kind(rawType)) {
			return out, apptype.NewBadType("type", rawType)
		}
		out.Type = rawType
		if out.List == "" {
			out.List = out.Title
		}
	}

	return out, nil
}

// ValidateAll validates a batch of raw maps, preserving order. The first
// violation fails the whole batch so a turn is applied all-or-nothing.
func ValidateAll(raws []map[string]any) ([]apptype.Action, error) {
	out := make([]apptype.Action, 0, len(raws))
	for i, raw := range raws {
		a, err := Validate(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func requirePresent(raw map[string]any, field string) error {
	v, ok := raw[field]
	if !ok || v == nil {
		return apptype.NewMissingField(field)
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return apptype.NewEmptyField(field, s)
	}
	if list, isList := v.([]any); isList && len(list) == 0 {
		return apptype.NewEmptyField(field, "[]")
	}
	return nil
}

func requireOneOf(raw map[string]any, group []string) error {
	for _, field := range group {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		if list, isList := v.([]any); isList && len(list) == 0 {
			continue
		}
		return nil
	}
	return apptype.NewMissingField(strings.Join(group, "|"))
}

func stringField(raw map[string]any, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", apptype.NewBadType(field, fmt.Sprintf("%v", v))
	}
	return strings.TrimSpace(s), nil
}

func stringListField(raw map[string]any, field string) ([]string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return nil, nil
	}
	list, isList := v.([]any)
	if !isList {
		// A bare string where a list is expected still counts as one item.
		if s, isStr := v.(string); isStr {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return []string{trimmed}, nil
			}
			return nil, nil
		}
		return nil, apptype.NewBadType(field, fmt.Sprintf("%v", v))
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, isStr := item.(string)
		if !isStr {
			return nil, apptype.NewBadType(field, fmt.Sprintf("%v", item))
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

func intField(raw map[string]any, field string) (int, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, apptype.NewBadType(field, fmt.Sprintf("%v", v))
	}
}
