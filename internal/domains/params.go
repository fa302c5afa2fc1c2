// ABOUTME: Declared operation parameters, their JSON schema, and argument validation.
// ABOUTME: Args wraps a JSON object and exposes typed, validated accessors.

package domains

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/2389/qbo-gateway/internal/packs"
)

// DateLayout is the only accepted date argument format.
const DateLayout = "2006-01-02"

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param declares one operation argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
	Required    bool
	Date        bool   // string in DateLayout
	Rules       string // extra validator tags, e.g. "email" or "min=1"
}

var validate = validator.New()

// tag renders the validator rules applied to a supplied value of p.
func (p Param) tag() string {
	var rules []string
	if len(p.Enum) > 0 {
		rules = append(rules, "oneof="+strings.Join(p.Enum, " "))
	}
	if p.Date {
		rules = append(rules, "datetime="+DateLayout)
	}
	if p.Type == TypeArray && p.Required {
		rules = append(rules, "min=1")
	}
	if p.Rules != "" {
		rules = append(rules, p.Rules)
	}
	return strings.Join(rules, ",")
}

// Args is a validated argument object.
type Args map[string]json.RawMessage

// parseArgs decodes raw into Args and checks every declared parameter.
// Undeclared fields are kept; create operations forward them upstream.
func parseArgs(raw json.RawMessage, params []Param) (Args, error) {
	args := Args{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &packs.InvalidArgumentsError{Field: "arguments", Reason: "must be a JSON object"}
		}
	}
	for _, p := range params {
		if err := p.check(args); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (p Param) check(args Args) error {
	v, ok := args.lookup(p.Name)
	if !ok {
		if p.Required {
			return packs.Missing(p.Name)
		}
		return nil
	}

	value, err := p.decode(v)
	if err != nil {
		return err
	}
	if s, isString := value.(string); isString && s == "" {
		if p.Required {
			return packs.Missing(p.Name)
		}
		return nil
	}

	tag := p.tag()
	if tag == "" {
		return nil
	}
	if err := validate.Var(value, tag); err != nil {
		return p.validationError(err)
	}
	return nil
}

// decode checks the JSON type of v and returns the Go value the rules run on.
// Strings are trimmed.
func (p Param) decode(v json.RawMessage) (any, error) {
	switch p.Type {
	case TypeString:
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, p.invalid("must be a string")
		}
		return strings.TrimSpace(s), nil
	case TypeInteger:
		n, ok := number(v)
		if !ok {
			return nil, p.invalid("must be an integer")
		}
		i, err := n.Int64()
		if err != nil {
			return nil, p.invalid("must be an integer")
		}
		return i, nil
	case TypeNumber:
		n, ok := number(v)
		if !ok {
			return nil, p.invalid("must be a number")
		}
		f, err := n.Float64()
		if err != nil {
			return nil, p.invalid("must be a number")
		}
		return f, nil
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, p.invalid("must be a boolean")
		}
		return b, nil
	case TypeObject:
		var obj map[string]json.RawMessage
		if v[0] != '{' || json.Unmarshal(v, &obj) != nil {
			return nil, p.invalid("must be an object")
		}
		return obj, nil
	case TypeArray:
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, p.invalid("must be an array")
		}
		return items, nil
	}
	return nil, p.invalid("has an unsupported type")
}

// number decodes a bare JSON number. Quoted numbers are rejected.
func number(v json.RawMessage) (json.Number, bool) {
	if v[0] == '"' {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", false
	}
	return n, true
}

// validationError maps the first failed rule to an argument error on p.
func (p Param) validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return p.invalid("is invalid")
	}
	fe := verrs[0]
	switch fe.ActualTag() {
	case "oneof":
		return p.invalid("must be one of " + strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return p.invalid("must be a date in YYYY-MM-DD format")
	case "email":
		return p.invalid("must be a valid email address")
	case "min", "gte":
		if fe.Kind() == reflect.Slice {
			return p.invalid("must not be empty")
		}
		return p.invalid("must be at least " + fe.Param())
	case "max", "lte":
		return p.invalid("must be at most " + fe.Param())
	default:
		return p.invalid("is invalid")
	}
}

func (p Param) invalid(reason string) error {
	return &packs.InvalidArgumentsError{Field: p.Name, Reason: reason}
}

// lookup returns the trimmed value of name, treating null as absent.
func (a Args) lookup(name string) (json.RawMessage, bool) {
	v, ok := a[name]
	if !ok {
		return nil, false
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// Has reports whether name was supplied with a non-null value.
func (a Args) Has(name string) bool {
	_, ok := a.lookup(name)
	return ok
}

// String returns name as a string, or "" when absent.
func (a Args) String(name string) string {
	v, ok := a.lookup(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Int returns name as an integer, or 0 when absent.
func (a Args) Int(name string) int {
	v, ok := a.lookup(name)
	if !ok {
		return 0
	}
	n, ok := number(v)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		return 0
	}
	return int(i)
}

// Text renders a scalar argument for substitution into a filter clause.
// Strings are unquoted; booleans and numbers use their JSON literal.
func (a Args) Text(name string) (string, bool) {
	v, ok := a.lookup(name)
	if !ok {
		return "", false
	}
	if v[0] == '"' {
		s := a.String(name)
		return s, s != ""
	}
	return string(v), true
}

// Body re-encodes the argument object for forwarding upstream.
func (a Args) Body() (json.RawMessage, error) {
	body, err := json.Marshal(map[string]json.RawMessage(a))
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return body, nil
}

// schema renders params as a JSON object schema.
func schema(params []Param, openEnded bool) json.RawMessage {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Date {
			prop["format"] = "date"
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	if openEnded {
		s["additionalProperties"] = true
	}
	out, _ := json.Marshal(s)
	return out
}
