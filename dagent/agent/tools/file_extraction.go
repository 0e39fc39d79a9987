package tools

import (
	"context"
	"encoding/json"
	"fmt"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/extract"
)

const (
	fileExtractionToolName = "file_content_extraction_tool"

	// extractionPageSize is measured in runes so multi-byte documents
	// paginate the same way the model sees them.
	extractionPageSize = 10000

	missingContentMessage = "Error: File content not found."
)

const fileExtractionDescription = "Extracts text content from files. " +
	"Supported: PDF (text only), TXT, CSV (as markdown table), HTML/HTM. " +
	"PAGINATION: Files >10,000 chars are paginated. " +
	"Response format: `**Page #X. Total pages: Y**` appears at end if paginated. " +
	"USAGE: Start with page=1. If paginated, call again with page=2, page=3, etc. to get remaining content. " +
	"Always check response end for pagination info before answering user queries about file content."

type fileExtractionArgs struct {
	FileURL string `json:"file_url" jsonschema_description:"File URL"`
	Page    int    `json:"page,omitempty" jsonschema:"default=1" jsonschema_description:"For large documents pagination is enabled. Each page consists of 10000 characters."`
}

var fileExtractionSchema = generateSchema[fileExtractionArgs]()

// FileContentExtractionTool downloads a file from DIAL storage and returns
// its textual content, paginated for large documents.
type FileContentExtractionTool struct {
	client *dial.Client
}

var _ agentports.Tool = (*FileContentExtractionTool)(nil)

func NewFileContentExtractionTool(client *dial.Client) *FileContentExtractionTool {
	return &FileContentExtractionTool{client: client}
}

func (t *FileContentExtractionTool) Name() string { return fileExtractionToolName }

func (t *FileContentExtractionTool) ShowArgsInStage() bool { return false }

func (t *FileContentExtractionTool) Definition() dial.Tool {
	return dial.NewFunctionTool(fileExtractionToolName, fileExtractionDescription, fileExtractionSchema)
}

func (t *FileContentExtractionTool) Execute(ctx context.Context, call agentports.CallContext, args json.RawMessage) (agentports.ToolOutput, error) {
	var params fileExtractionArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("parse arguments: %w", err)
	}
	if params.FileURL == "" {
		return agentports.ToolOutput{}, fmt.Errorf("file_url is required")
	}
	page := params.Page
	if page == 0 {
		page = 1
	}

	call.Stage.AppendContent("## Request arguments: \n")
	call.Stage.AppendContent(fmt.Sprintf("**File URL**: %s\n\r", params.FileURL))
	if page > 1 {
		call.Stage.AppendContent(fmt.Sprintf("**Page**: %d\n\r", page))
	}
	call.Stage.AppendContent("## Response: \n")

	filename, data, err := t.client.DownloadFile(ctx, call.APIKey, params.FileURL)
	if err != nil {
		return agentports.ToolOutput{}, err
	}
	call.Stage.AppendName(": " + filename)

	content, err := extract.Text(filename, data)
	if err != nil || content == "" {
		content = missingContentMessage
	}

	runes := []rune(content)
	if len(runes) > extractionPageSize {
		totalPages := (len(runes) + extractionPageSize - 1) / extractionPageSize
		if page < 1 {
			page = 1
		}
		if page > totalPages {
			return agentports.ToolOutput{
				Text: fmt.Sprintf("Error: Page %d does not exist. Total pages: %d", page, totalPages),
			}, nil
		}
		start := (page - 1) * extractionPageSize
		end := min(start+extractionPageSize, len(runes))
		content = fmt.Sprintf("%s\n\n**Page #%d. Total pages: %d**", string(runes[start:end]), page, totalPages)
	}

	call.Stage.AppendContent(fmt.Sprintf("```text\n\r%s\n\r```\n\r", content))
	return agentports.ToolOutput{Text: content}, nil
}
