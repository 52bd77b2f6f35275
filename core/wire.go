package core

import (
	"time"

	"github.com/memback/memback/types"
)

// encode shapes a stored document for the wire: masked fields are stripped
// and timestamps are rendered in ISO form. Expanded nested objects are
// shaped with their own class's mask.
func (s *Store) encode(className string, doc map[string]any) map[string]any {
	masked := s.masks[className]
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		if _, ok := masked[key]; ok {
			continue
		}
		out[key] = s.encodeValue(key, value)
	}
	return out
}

func (s *Store) encodeValue(key string, value any) any {
	switch v := value.(type) {
	case time.Time:
		// Reserved timestamps travel as bare ISO strings, any other
		// instant as a date envelope.
		if key == types.FieldCreatedAt || key == types.FieldUpdatedAt {
			return v.UTC().Format(types.ISOFormat)
		}
		return types.NewDate(v)
	case map[string]any:
		if v[types.TypeKey] == types.ObjectType {
			nestedClass, _ := v[types.FieldClassName].(string)
			return s.encode(nestedClass, v)
		}
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = s.encodeValue(k, e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = s.encodeValue("", e)
		}
		return out
	default:
		return value
	}
}
