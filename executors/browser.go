package executors

import (
	"context"
	"fmt"

	"flowforge/browser"
	"flowforge/runtime"
)

func (s *set) launchBrowser(ctx context.Context, env *runtime.ExecutionEnvironment) error {
	websiteURL, err := requireInput(env, "Website Url")
	if err != nil {
		return err
	}

	b := browser.Launch(s.cfg.BrowserTimeout)
	env.Log.Info("Browser started successfully")
	env.SetBrowser(b)

	page := b.NewPage()
	if err := page.Goto(ctx, websiteURL); err != nil {
		return err
	}
	env.SetPage(page)
	env.Log.Info(fmt.Sprintf("Opened page at: %s", websiteURL))
	return nil
}

func (s *set) navigateURL(ctx context.Context, env *runtime.ExecutionEnvironment) error {
	p, err := page(env)
	if err != nil {
		return err
	}
	target, err := requireInput(env, "URL")
	if err != nil {
		return err
	}
	if err := p.Goto(ctx, target); err != nil {
		return err
	}
	env.Log.Info(fmt.Sprintf("Visited %s", target))
	return nil
}

func (s *set) pageToHTML(_ context.Context, env *runtime.ExecutionEnvironment) error {
	p, err := page(env)
	if err != nil {
		return err
	}
	html, err := p.Content()
	if err != nil {
		return err
	}
	env.SetOutput("HTML", html)
	return nil
}

func (s *set) clickElement(ctx context.Context, env *runtime.ExecutionEnvironment) error {
	p, err := page(env)
	if err != nil {
		return err
	}
	selector, err := requireInput(env, "Selector")
	if err != nil {
		return err
	}
	return p.Click(ctx, selector)
}

func (s *set) fillInput(_ context.Context, env *runtime.ExecutionEnvironment) error {
	p, err := page(env)
	if err != nil {
		return err
	}
	selector, err := requireInput(env, "Selector")
	if err != nil {
		return err
	}
	value, err := requireInput(env, "Value")
	if err != nil {
		return err
	}
	return p.Fill(selector, value)
}

func (s *set) waitForElement(_ context.Context, env *runtime.ExecutionEnvironment) error {
	p, err := page(env)
	if err != nil {
		return err
	}
	selector, err := requireInput(env, "Selector")
	if err != nil {
		return err
	}
	visibility, err := requireInput(env, "Visibility")
	if err != nil {
		return err
	}

	present, err := p.Has(selector)
	if err != nil {
		return err
	}
	switch visibility {
	case "visible":
		if !present {
			return fmt.Errorf("element not found: %s", selector)
		}
	case "hidden":
		if present {
			return fmt.Errorf("element still present: %s", selector)
		}
	default:
		return fmt.Errorf("invalid visibility %q", visibility)
	}
	env.Log.Info(fmt.Sprintf("Element %s became: %s", selector, visibility))
	return nil
}

func (s *set) scrollToElement(_ context.Context, env *runtime.ExecutionEnvironment) error {
	p, err := page(env)
	if err != nil {
		return err
	}
	selector, err := requireInput(env, "Selector")
	if err != nil {
		return err
	}
	present, err := p.Has(selector)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("element not found: %s", selector)
	}
	return nil
}
