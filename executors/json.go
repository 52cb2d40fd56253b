package executors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jeffail/gabs/v2"
	"github.com/expr-lang/expr"

	"flowforge/runtime"
)

// readPropertyFromJSON evaluates the property name as an expression against
// the parsed document, so plain names ("title") and paths ("items[0].id",
// "user.name") both work.
func (s *set) readPropertyFromJSON(_ context.Context, env *runtime.ExecutionEnvironment) error {
	raw, err := requireInput(env, "JSON")
	if err != nil {
		return err
	}
	property, err := requireInput(env, "Property name")
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	object, ok := doc.(map[string]any)
	if !ok {
		return fmt.Errorf("JSON input is not an object")
	}

	value, err := expr.Eval(property, object)
	if err != nil {
		return fmt.Errorf("property %s not found in JSON", property)
	}
	if value == nil {
		return fmt.Errorf("property %s not found in JSON", property)
	}

	env.SetOutput("Property value", stringify(value))
	return nil
}

func (s *set) addPropertyToJSON(_ context.Context, env *runtime.ExecutionEnvironment) error {
	raw, err := requireInput(env, "JSON")
	if err != nil {
		return err
	}
	property, err := requireInput(env, "Property name")
	if err != nil {
		return err
	}
	value, err := requireInput(env, "Property value")
	if err != nil {
		return err
	}

	container, err := gabs.ParseJSON([]byte(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	if _, err := container.SetP(value, property); err != nil {
		return fmt.Errorf("cannot set property %s: %w", property, err)
	}

	env.SetOutput("Updated JSON", container.String())
	return nil
}

// stringify renders an extracted value: strings pass through, everything else
// is re-serialized as JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
