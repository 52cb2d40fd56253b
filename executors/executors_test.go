package executors

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"flowforge/runtime"
)

// testEnv builds a node-scoped environment with pre-resolved inputs, the way
// the runtime hands one to an executor.
func testEnv(inputs map[string]string) *runtime.ExecutionEnvironment {
	env := runtime.NewExecutionEnvironment("node-1", "user-1", runtime.NewEnvironment(), runtime.NewLogCollector())
	for name, value := range inputs {
		env.SetInput(name, value)
	}
	return env
}

type stubCredentials map[string]string

func (s stubCredentials) Plaintext(_ context.Context, _, id string) (string, error) {
	v, ok := s[id]
	if !ok {
		return "", fmt.Errorf("credential not found: %s", id)
	}
	return v, nil
}

func testSet() *set {
	return &set{
		cfg:         Config{AIModel: "gpt-4o-mini"},
		credentials: stubCredentials{},
		http:        resty.New(),
		ai:          resty.New(),
	}
}
