package scope

import (
	"fmt"
	"strings"
)

// FieldDescriptor describes one leaf path visible on a node.
type FieldDescriptor struct {
	Path string `json:"path"`
	Type string `json:"type"`
	// Watchers counts listeners of the describing scope keyed on Path.
	Watchers int `json:"watchers,omitempty"`
}

// Describe flattens every visible key of n into leaf paths sorted
// alphabetically. Empty objects and arrays are reported as leaves.
func (n *Node) Describe() []FieldDescriptor {
	fields := deriveFieldDescriptors(n.Export(), "")
	if len(fields) == 0 {
		return []FieldDescriptor{}
	}
	counts := make(map[string]int)
	for _, l := range n.homeNode().owned {
		counts[describePath(l.path)]++
	}
	for i := range fields {
		fields[i].Watchers = counts[fields[i].Path]
	}
	return fields
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix == "" {
				return nil
			}
			return []FieldDescriptor{{Path: prefix, Type: "object"}}
		}
		keys := sortedKeys(typed)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(typed[key], joinPath(prefix, key))...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []FieldDescriptor{{Path: prefix, Type: "[]" + elementType}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Type: typeName(typed)}}
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "nil"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
