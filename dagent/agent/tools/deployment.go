package tools

import (
	"context"
	"strings"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
)

// runDeployment sends a single prompt to a DIAL deployment and streams the
// reply into the stage. Extra configuration travels through custom_fields so
// the deployment receives its native parameters untouched. Returns the
// accumulated text and any attachments the deployment produced.
func runDeployment(
	ctx context.Context,
	client *dial.Client,
	deployment string,
	apiKey string,
	prompt string,
	configuration map[string]any,
	stage agentports.Stage,
) (string, []dial.Attachment, error) {
	req := dial.ChatRequest{
		Messages: []dial.Message{{Role: dial.RoleUser, Content: prompt}},
	}
	if len(configuration) > 0 {
		req.CustomFields = &dial.CustomFields{Configuration: configuration}
	}

	var content strings.Builder
	var attachments []dial.Attachment
	err := client.ChatStream(ctx, deployment, apiKey, req, func(chunk dial.Chunk) error {
		for _, choice := range chunk.Choices {
			if choice.Index != 0 {
				continue
			}
			if choice.Delta.Content != "" {
				stage.AppendContent(choice.Delta.Content)
				content.WriteString(choice.Delta.Content)
			}
			if choice.Delta.CustomContent == nil {
				continue
			}
			for _, att := range choice.Delta.CustomContent.Attachments {
				attachments = append(attachments, att)
				stage.AddAttachment(att)
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return content.String(), attachments, nil
}
