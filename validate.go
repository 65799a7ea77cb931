package routed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ruleEngineValidator is the shared validator/v10 instance the rule
// engine runs each field through via Var, translating this package's
// pipe-delimited rule strings ("required|email|max_length:50") into
// validator's own comma-delimited tag syntax ("required,email,max=50").
var ruleEngineValidator = validator.New()

// ruleAliases maps this package's rule vocabulary onto validator/v10 tag
// names where they differ.
var ruleAliases = map[string]string{
	"max_length": "max",
	"min_length": "min",
	"uuid":       "uuid4",
}

// Rules maps a field name to its pipe-delimited rule string, the shape
// `validate(ctx, rules)` consumes per spec.md §4.3.
type Rules map[string]string

// ValidateOptions configures a Validate call.
type ValidateOptions struct {
	// Bail stops validating a field at its first rule failure instead of
	// collecting every failure for that field, per spec.md §4.3.
	Bail bool
}

// Validate runs rules over fields (typically the output of a prior Bind
// into a map, or any map[string]interface{} a handler assembles), raising
// a *ValidationError mapping field -> messages on any failure.
func Validate(fields map[string]interface{}, rules Rules, opts ValidateOptions) error {
	errs := map[string][]string{}

	for field, ruleStr := range rules {
		value := fields[field]
		for _, token := range strings.Split(ruleStr, "|") {
			if token == "" {
				continue
			}
			if msg, ok := runRule(field, value, token); !ok {
				errs[field] = append(errs[field], msg)
				if opts.Bail {
					break
				}
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// runRule evaluates one "name" or "name:param" rule token against value,
// returning (message, true) when it passes and (message, false) when it
// fails.
func runRule(field string, value interface{}, token string) (string, bool) {
	name := token
	param := ""
	if idx := strings.IndexByte(token, ':'); idx >= 0 {
		name = token[:idx]
		param = token[idx+1:]
	}

	if name == "required" {
		if isEmptyValue(value) {
			return fmt.Sprintf("%s is required", field), false
		}
		return "", true
	}

	if isEmptyValue(value) {
		// Absent optional fields pass every other rule.
		return "", true
	}

	tag, ok := ruleAliases[name]
	if !ok {
		tag = name
	}
	if param != "" {
		tag = tag + "=" + param
	}

	if err := ruleEngineValidator.Var(value, tag); err != nil {
		return fmt.Sprintf("%s failed rule %q", field, token), false
	}
	return "", true
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	}
	return false
}

// Validate runs rules over the context's bound fields via the rule
// engine above. target must already be populated (e.g. by Bind into a
// map[string]interface{}); struct targets are validated by marshaling
// them back through encoding/json first.
func (c *EngineContext) Validate(target interface{}, rules Rules, opts ...ValidateOptions) error {
	var o ValidateOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	fields, ok := target.(map[string]interface{})
	if !ok {
		fields = structToMap(target)
	}

	return Validate(fields, rules, o)
}

func structToMap(target interface{}) map[string]interface{} {
	b, err := json.Marshal(target)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
