// XML-RPC message codec. Hand-rolled on encoding/xml: the ecosystem's
// server-side XML-RPC packages are unmaintained, and the bridge needs
// only the handful of shapes below (scalars, structs, arrays, base64).
package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// methodCall is a parsed <methodCall> envelope.
type methodCall struct {
	XMLName    xml.Name   `xml:"methodCall"`
	MethodName string     `xml:"methodName"`
	Params     []xmlValue `xml:"params>param>value"`
}

type xmlValue struct {
	Int     *string    `xml:"int"`
	I4      *string    `xml:"i4"`
	Boolean *string    `xml:"boolean"`
	Str     *string    `xml:"string"`
	Double  *string    `xml:"double"`
	B64     *string    `xml:"base64"`
	Struct  *xmlStruct `xml:"struct"`
	Array   *xmlArray  `xml:"array"`
	Nil     *struct{}  `xml:"nil"`
	Raw     string     `xml:",chardata"`
}

type xmlStruct struct {
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string   `xml:"name"`
	Value xmlValue `xml:"value"`
}

type xmlArray struct {
	Values []xmlValue `xml:"data>value"`
}

// parseCall decodes a request body into the method name and Go-typed
// arguments.
func parseCall(body []byte) (string, []any, error) {
	var call methodCall
	if err := xml.Unmarshal(body, &call); err != nil {
		return "", nil, fmt.Errorf("xmlrpc: parsing method call: %w", err)
	}
	if call.MethodName == "" {
		return "", nil, fmt.Errorf("xmlrpc: missing methodName")
	}
	args := make([]any, len(call.Params))
	for i, p := range call.Params {
		v, err := decodeValue(p)
		if err != nil {
			return "", nil, fmt.Errorf("xmlrpc: param %d: %w", i, err)
		}
		args[i] = v
	}
	return call.MethodName, args, nil
}

func decodeValue(v xmlValue) (any, error) {
	switch {
	case v.Nil != nil:
		return nil, nil
	case v.Int != nil:
		return parseInt(*v.Int)
	case v.I4 != nil:
		return parseInt(*v.I4)
	case v.Boolean != nil:
		switch strings.TrimSpace(*v.Boolean) {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		default:
			return nil, fmt.Errorf("invalid boolean %q", *v.Boolean)
		}
	case v.Double != nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid double %q", *v.Double)
		}
		return f, nil
	case v.B64 != nil:
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*v.B64))
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return data, nil
	case v.Str != nil:
		return *v.Str, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for _, m := range v.Struct.Members {
			mv, err := decodeValue(m.Value)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			out[m.Name] = mv
		}
		return out, nil
	case v.Array != nil:
		out := make([]any, len(v.Array.Values))
		for i, av := range v.Array.Values {
			ev, err := decodeValue(av)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	default:
		// Untyped <value>text</value> defaults to string.
		return v.Raw, nil
	}
}

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid int %q", s)
	}
	return n, nil
}

// marshalResponse encodes a successful <methodResponse> carrying one
// return value.
func marshalResponse(v any) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodResponse><params><param>")
	writeValue(&b, v)
	b.WriteString("</param></params></methodResponse>")
	return b.Bytes()
}

// marshalFault encodes a <fault> response.
func marshalFault(code int, message string) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodResponse><fault>")
	writeValue(&b, map[string]any{
		"faultCode":   code,
		"faultString": message,
	})
	b.WriteString("</fault></methodResponse>")
	return b.Bytes()
}

func writeValue(b *bytes.Buffer, v any) {
	b.WriteString("<value>")
	switch v := v.(type) {
	case nil:
		b.WriteString("<nil/>")
	case bool:
		if v {
			b.WriteString("<boolean>1</boolean>")
		} else {
			b.WriteString("<boolean>0</boolean>")
		}
	case int:
		fmt.Fprintf(b, "<int>%d</int>", v)
	case int64:
		fmt.Fprintf(b, "<int>%d</int>", v)
	case float64:
		fmt.Fprintf(b, "<double>%g</double>", v)
	case string:
		b.WriteString("<string>")
		xml.EscapeText(b, []byte(v))
		b.WriteString("</string>")
	case []byte:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(v))
		b.WriteString("</base64>")
	case []any:
		b.WriteString("<array><data>")
		for _, item := range v {
			writeValue(b, item)
		}
		b.WriteString("</data></array>")
	case []string:
		b.WriteString("<array><data>")
		for _, item := range v {
			writeValue(b, item)
		}
		b.WriteString("</data></array>")
	case map[string]any:
		// Deterministic member order keeps responses testable.
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("<struct>")
		for _, name := range names {
			b.WriteString("<member><name>")
			xml.EscapeText(b, []byte(name))
			b.WriteString("</name>")
			writeValue(b, v[name])
			b.WriteString("</member>")
		}
		b.WriteString("</struct>")
	default:
		b.WriteString("<string>")
		xml.EscapeText(b, []byte(fmt.Sprint(v)))
		b.WriteString("</string>")
	}
	b.WriteString("</value>")
}

// parseResponse decodes a <methodResponse> into its return value, or a
// *Fault error. Used by tests and Go-side callers.
func parseResponse(body []byte) (any, error) {
	var resp struct {
		XMLName xml.Name    `xml:"methodResponse"`
		Params  []xmlValue  `xml:"params>param>value"`
		Fault   *xmlValue   `xml:"fault>value"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("xmlrpc: parsing response: %w", err)
	}
	if resp.Fault != nil {
		fv, err := decodeValue(*resp.Fault)
		if err != nil {
			return nil, fmt.Errorf("xmlrpc: parsing fault: %w", err)
		}
		m, _ := fv.(map[string]any)
		f := &Fault{}
		if code, ok := m["faultCode"].(int64); ok {
			f.Code = int(code)
		}
		if s, ok := m["faultString"].(string); ok {
			f.Message = s
		}
		return nil, f
	}
	if len(resp.Params) == 0 {
		return nil, nil
	}
	return decodeValue(resp.Params[0])
}

// Fault is an XML-RPC fault response.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.Message)
}
