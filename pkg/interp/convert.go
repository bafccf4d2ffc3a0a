package interp

import (
	"fmt"

	"go.starlark.net/starlark"
)

// FromStarlark converts an interpreter value into a plain Go value
// suitable for JSON and XML-RPC serialization. Unrepresentable values
// fall back to their display string.
func FromStarlark(v starlark.Value) any {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		return v.String()
	case starlark.Float:
		return float64(v)
	case starlark.String:
		return string(v)
	case *starlark.List:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = FromStarlark(v.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = FromStarlark(item)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key, ok := item[0].(starlark.String)
			if ok {
				out[string(key)] = FromStarlark(item[1])
			} else {
				out[item[0].String()] = FromStarlark(item[1])
			}
		}
		return out
	default:
		return v.String()
	}
}

// ToStarlark converts a plain Go value into an interpreter value, for
// hosts seeding the namespace with configuration or state.
func ToStarlark(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case string:
		return starlark.String(v)
	case []any:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = ToStarlark(item)
		}
		return starlark.NewList(items)
	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, item := range v {
			d.SetKey(starlark.String(k), ToStarlark(item))
		}
		return d
	default:
		return starlark.String(fmt.Sprint(v))
	}
}
