// Package types defines the document model shared by every engine component:
// envelope tags, reserved fields, and the equality and ordering rules used by
// the query and update engines.
package types

import "time"

const (
	// TypeKey tags a map value as a typed envelope.
	TypeKey = "__type"
	// OpKey tags a map value as an update operation.
	OpKey = "__op"

	PointerType = "Pointer"
	DateType    = "Date"
	ObjectType  = "Object"
)

// Reserved document fields.
const (
	FieldObjectID  = "objectId"
	FieldClassName = "className"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// ISOFormat is the wire format for timestamps.
const ISOFormat = "2006-01-02T15:04:05.000Z"

// NewPointer returns a pointer envelope referencing the object with the
// given class and id.
func NewPointer(className, objectID string) map[string]any {
	return map[string]any{
		TypeKey:        PointerType,
		FieldClassName: className,
		FieldObjectID:  objectID,
	}
}

// IsPointer reports whether the value is a pointer envelope.
func IsPointer(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m[TypeKey] == PointerType
}

// PointerTarget returns the class and object id referenced by a pointer
// envelope.
func PointerTarget(v any) (className, objectID string, ok bool) {
	m, mok := v.(map[string]any)
	if !mok || m[TypeKey] != PointerType {
		return "", "", false
	}
	className, _ = m[FieldClassName].(string)
	objectID, ok = m[FieldObjectID].(string)
	return className, objectID, ok
}

// NewDate returns a date envelope for the given instant.
func NewDate(t time.Time) map[string]any {
	return map[string]any{
		TypeKey: DateType,
		"iso":   t.UTC().Format(ISOFormat),
	}
}

// IsDate reports whether the value is a date envelope.
func IsDate(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m[TypeKey] == DateType
}

// DateValue returns the instant carried by a date envelope or a concrete
// time value.
func DateValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case map[string]any:
		if t[TypeKey] != DateType {
			return time.Time{}, false
		}
		iso, _ := t["iso"].(string)
		parsed, err := time.Parse(ISOFormat, iso)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, iso)
		}
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// Copy returns a deep copy of the given document. Scalars and time values
// are shared; maps and slices are copied recursively.
func Copy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Copy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
