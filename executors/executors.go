// Package executors implements the concrete task logic behind each TaskType.
// Every executor follows the same contract: read named inputs from the
// execution environment, do the work, write named outputs, and return nil
// only on full success. The runtime logs returned errors and fails the phase.
package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"flowforge/browser"
	"flowforge/runtime"
)

// CredentialSource resolves a stored credential id to its plaintext value.
type CredentialSource interface {
	Plaintext(ctx context.Context, userID, id string) (string, error)
}

// Config tunes the executor set.
type Config struct {
	BrowserTimeout time.Duration `yaml:"browser_timeout" default:"30s" validate:"gte=1s"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" default:"30s" validate:"gte=1s"`
	AIBaseURL      string        `yaml:"ai_base_url" default:"https://api.openai.com/v1" validate:"url_format"`
	AIModel        string        `yaml:"ai_model" default:"gpt-4o-mini" validate:"required"`
	AITimeout      time.Duration `yaml:"ai_timeout" default:"2m" validate:"gte=1s"`
}

type set struct {
	cfg         Config
	credentials CredentialSource
	http        *resty.Client
	ai          *resty.Client
}

// NewRegistry builds the executor map for the closed task-type set. It is the
// runtime twin of runtime.Catalog; every catalog entry has exactly one
// executor here.
func NewRegistry(cfg Config, credentials CredentialSource) runtime.ExecutorRegistry {
	s := &set{
		cfg:         cfg,
		credentials: credentials,
		http:        resty.New().SetTimeout(cfg.WebhookTimeout),
		ai:          resty.New().SetTimeout(cfg.AITimeout).SetBaseURL(cfg.AIBaseURL),
	}
	return runtime.ExecutorRegistry{
		runtime.TaskLaunchBrowser:          s.launchBrowser,
		runtime.TaskNavigateURL:            s.navigateURL,
		runtime.TaskPageToHTML:             s.pageToHTML,
		runtime.TaskClickElement:           s.clickElement,
		runtime.TaskFillInput:              s.fillInput,
		runtime.TaskWaitForElement:         s.waitForElement,
		runtime.TaskScrollToElement:        s.scrollToElement,
		runtime.TaskExtractTextFromElement: s.extractTextFromElement,
		runtime.TaskExtractDataWithAI:      s.extractDataWithAI,
		runtime.TaskReadPropertyFromJSON:   s.readPropertyFromJSON,
		runtime.TaskAddPropertyToJSON:      s.addPropertyToJSON,
		runtime.TaskDeliverViaWebhook:      s.deliverViaWebhook,
	}
}

// page fetches the shared page handle set by an upstream browser task.
func page(env *runtime.ExecutionEnvironment) (*browser.Page, error) {
	p, ok := env.GetPage().(*browser.Page)
	if !ok || p == nil {
		return nil, fmt.Errorf("no page available; connect a browser task upstream")
	}
	return p, nil
}

// requireInput reads a named input and errors when it is empty. Missing
// inputs were already logged during resolution; this is the executor-side
// guard that stops the work.
func requireInput(env *runtime.ExecutionEnvironment, name string) (string, error) {
	v := env.GetInput(name)
	if v == "" {
		return "", fmt.Errorf("input %q not defined", name)
	}
	return v, nil
}
