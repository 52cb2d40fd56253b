package executors

import (
	"context"
	"fmt"
	"net/http"

	"flowforge/runtime"
)

// deliverViaWebhook POSTs the body to the target URL as JSON. Anything but a
// 200 is a failure; the response body is logged for inspection either way.
func (s *set) deliverViaWebhook(ctx context.Context, env *runtime.ExecutionEnvironment) error {
	targetURL, err := requireInput(env, "Target URL")
	if err != nil {
		return err
	}
	body, err := requireInput(env, "Body")
	if err != nil {
		return err
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(targetURL)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("request failed with status code: %d", resp.StatusCode())
	}

	env.Log.Info(string(resp.Body()))
	return nil
}
