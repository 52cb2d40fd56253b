package executors

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"flowforge/runtime"
)

func (s *set) extractTextFromElement(_ context.Context, env *runtime.ExecutionEnvironment) error {
	selector, err := requireInput(env, "Selector")
	if err != nil {
		return err
	}
	html, err := requireInput(env, "Html")
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("error parsing html: %w", err)
	}
	element := doc.Find(selector)
	if element.Length() == 0 {
		return fmt.Errorf("element not found: %s", selector)
	}
	text := strings.TrimSpace(element.Text())
	if text == "" {
		return fmt.Errorf("element has no text")
	}

	env.SetOutput("Extracted text", text)
	return nil
}

// The system prompt mirrors the product's extraction contract: the model must
// answer with the extracted data as bare JSON, nothing else.
const extractionSystemPrompt = "You are a web scrapper helper that extracts data from HTML or text. " +
	"You will be given a piece of text or HTML content as input and also the prompt with the data you have to extract. " +
	"The response should always be only the extracted data as a JSON array or object, without any additional words or explanations. " +
	"Analyze the input carefully and extract data precisely based on the prompt. " +
	"If no data is found, return an empty JSON array. " +
	"Work only with the provided content and ensure the output is always a valid JSON array without any surrounding text."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *set) extractDataWithAI(ctx context.Context, env *runtime.ExecutionEnvironment) error {
	content, err := requireInput(env, "Content")
	if err != nil {
		return err
	}
	credentialID, err := requireInput(env, "Credentials")
	if err != nil {
		return err
	}
	prompt, err := requireInput(env, "Prompt")
	if err != nil {
		return err
	}

	apiKey, err := s.credentials.Plaintext(ctx, env.UserID(), credentialID)
	if err != nil {
		return err
	}

	var result chatResponse
	resp, err := s.ai.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(chatRequest{
			Model: s.cfg.AIModel,
			Messages: []chatMessage{
				{Role: "system", Content: extractionSystemPrompt},
				{Role: "user", Content: content},
				{Role: "user", Content: prompt},
			},
			Temperature: 1,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/chat/completions")
	if err != nil {
		return fmt.Errorf("AI request failed: %w", err)
	}
	if resp.IsError() {
		if result.Error != nil {
			return fmt.Errorf("AI request failed: %s", result.Error.Message)
		}
		return fmt.Errorf("AI request failed with status code: %d", resp.StatusCode())
	}

	env.Log.Info(fmt.Sprintf("Prompt tokens: %d", result.Usage.PromptTokens))
	env.Log.Info(fmt.Sprintf("Completion tokens: %d", result.Usage.CompletionTokens))

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return fmt.Errorf("no response from AI")
	}
	env.SetOutput("Extracted data", result.Choices[0].Message.Content)
	return nil
}
