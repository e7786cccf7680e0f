package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/vasilisp/searchai/internal/util"
)

type Client struct {
	client openai.Client
	model  openai.ChatModel
}

func NewClient(token string, model string, opts ...option.RequestOption) *Client {
	util.Assert(token != "", "NewClient empty token")
	util.Assert(model != "", "NewClient empty model")

	opts = append([]option.RequestOption{option.WithAPIKey(token)}, opts...)
	client := openai.NewClient(opts...)

	return &Client{
		client: client,
		model:  openai.ChatModel(model),
	}
}

func extractGPTResponse(chatCompletion *openai.ChatCompletion) (string, error) {
	if chatCompletion == nil {
		return "", fmt.Errorf("nil chatCompletion")
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	if refusal := chatCompletion.Choices[0].Message.Refusal; refusal != "" {
		return "", fmt.Errorf("model refused: %s", refusal)
	}
	return chatCompletion.Choices[0].Message.Content, nil
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	params.Model = c.model

	chatCompletion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("ChatCompletion error: %w", err)
	}

	return extractGPTResponse(chatCompletion)
}

// AskGPT runs a single stateless completion.
func (c *Client) AskGPT(ctx context.Context, systemMessage string, userMessage string) (string, error) {
	util.Assert(c != nil, "AskGPT nil client")
	util.Assert(systemMessage != "", "AskGPT empty systemMessage")
	util.Assert(userMessage != "", "AskGPT empty userMessage")

	return c.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemMessage),
			openai.UserMessage(userMessage),
		},
	})
}

// AskJSON runs a single completion constrained to the given JSON schema and
// returns the raw JSON text. The caller is responsible for parsing it.
func (c *Client) AskJSON(ctx context.Context, systemMessage string, userMessage string, schemaName string, schema any) (string, error) {
	util.Assert(c != nil, "AskJSON nil client")
	util.Assert(schemaName != "", "AskJSON empty schemaName")
	util.Assert(schema != nil, "AskJSON nil schema")

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   schemaName,
		Schema: schema,
		Strict: openai.Bool(true),
	}

	return c.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemMessage),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
	})
}
