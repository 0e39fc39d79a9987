package tools

import (
	"context"
	"encoding/json"
	"fmt"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

const (
	imageGenerationToolName   = "image_generation_tool"
	defaultImageDeployment    = "dall-e-3"
	imageGeneratedFallbackMsg = "The image has been successfully generated according to request and shown to user!"
)

const imageGenerationDescription = "# Image generator\n" +
	"Generates image based on the provided description.\n" +
	"## Instructions:\n" +
	"- Use that tool when user asks to generate an image based on the description or to visualize some text or information.\n" +
	"- Choose the best size from available options based on user request or image type. For specific size requests, use the closest supported option.\n" +
	"- When the tool returns a markdown image URL, always include it in your response and follow it with a brief description.\n" +
	"## Restrictions:\n" +
	"- Never use this tool for data or numerical information visualization."

// Built by hand: the style and quality descriptions contain markdown that
// cannot live in struct tags.
var imageGenerationSchema = mustSchemaJSON(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"prompt": map[string]any{
			"type":        "string",
			"description": "Extensive description of the image that should be generated.",
		},
		"size": map[string]any{
			"type":        "string",
			"description": "The size of the generated image.",
			"enum":        []string{"1024x1024", "1024x1792", "1792x1024"},
			"default":     "1024x1024",
		},
		"style": map[string]any{
			"type": "string",
			"description": "The style of the generated image. Must be one of `vivid` or `natural`. \n" +
				"- `vivid` causes the model to lean towards generating hyperrealistic and dramatic images. \n" +
				"- `natural` causes the model to produce more natural, less realistic looking images.",
			"enum":    []string{"natural", "vivid"},
			"default": "natural",
		},
		"quality": map[string]any{
			"type":        "string",
			"description": "The quality of the image that will be generated. ‘hd’ creates images with finer details and greater consistency across the image.",
			"enum":        []string{"standard", "hd"},
			"default":     "standard",
		},
	},
	"required": []string{"prompt"},
})

// ImageGenerationTool forwards a prompt to an image deployment and surfaces
// the generated pictures directly in the chat. Parameters other than the
// prompt pass through to the deployment unchanged.
type ImageGenerationTool struct {
	client     *dial.Client
	deployment string
}

var _ agentports.Tool = (*ImageGenerationTool)(nil)

func NewImageGenerationTool(client *dial.Client, deployment string) *ImageGenerationTool {
	if deployment == "" {
		deployment = defaultImageDeployment
	}
	return &ImageGenerationTool{client: client, deployment: deployment}
}

func (t *ImageGenerationTool) Name() string { return imageGenerationToolName }

func (t *ImageGenerationTool) ShowArgsInStage() bool { return true }

func (t *ImageGenerationTool) Definition() dial.Tool {
	return dial.NewFunctionTool(imageGenerationToolName, imageGenerationDescription, imageGenerationSchema)
}

func (t *ImageGenerationTool) Execute(ctx context.Context, call agentports.CallContext, args json.RawMessage) (agentports.ToolOutput, error) {
	var params map[string]any
	if err := json.Unmarshal(args, &params); err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("parse arguments: %w", err)
	}
	prompt, ok := params["prompt"].(string)
	if !ok || prompt == "" {
		return agentports.ToolOutput{}, fmt.Errorf("prompt is required")
	}
	delete(params, "prompt")

	content, attachments, err := runDeployment(ctx, t.client, t.deployment, call.APIKey, prompt, params, call.Stage)
	if err != nil {
		return agentports.ToolOutput{}, err
	}

	msg := &dial.Message{Content: content}
	if len(attachments) > 0 {
		// DIAL Chat renders bucket files referenced through image markdown,
		// so the picture shows up in the conversation itself.
		for _, att := range attachments {
			if att.Type == "image/png" || att.Type == "image/jpeg" {
				call.Choice.AppendContent(fmt.Sprintf("\n\r![image](%s)\n\r", att.URL))
			}
		}
		if msg.Content == "" {
			// Tells the model the user already sees the image, otherwise it
			// tends to paste the file into its answer again.
			msg.Content = imageGeneratedFallbackMsg
		}
		msg.CustomContent = &dial.CustomContent{Attachments: attachments}
	}
	return agentports.ToolOutput{Message: msg}, nil
}
