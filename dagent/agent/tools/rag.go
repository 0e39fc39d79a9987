package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/extract"
	"github.com/ZanzyTHEbar/dialagent/dagent/rag"
)

const ragToolName = "rag_tool"

const ragDefaultTopK = 3

// ragGenerationSystemPrompt frames the generation step: the model answers
// from retrieved context only.
const ragGenerationSystemPrompt = `You are a helpful assistant that answers questions based on provided document context.

You will receive:
- CONTEXT: Retrieved relevant excerpts from a document
- REQUEST: The user's question or search query

Instructions:
- Answer the request using only the information in the provided context
- If the context doesn't contain enough information to answer, clearly state that
- Be concise and direct in your response
`

const ragDescription = "Performs semantic search on documents to find and answer questions based on relevant content. " +
	"Supports: PDF, TXT, CSV, HTML. " +
	"Use this tool when user asks questions about document content, needs specific information from large files, " +
	"or wants to search for particular topics/keywords. " +
	"Don't use it when: user wants to read entire document sequentially. " +
	"HOW IT WORKS: Splits document into chunks, finds top 3 most relevant sections using semantic search, " +
	"then generates answer based only on those sections."

type ragArgs struct {
	Request string `json:"request" jsonschema_description:"The search query or question to search for in the document"`
	FileURL string `json:"file_url" jsonschema_description:"File URL"`
}

var ragSchema = generateSchema[ragArgs]()

// DialEmbedder embeds texts through a DIAL embedding deployment.
type DialEmbedder struct {
	client     *dial.Client
	deployment string
}

var _ rag.Embedder = (*DialEmbedder)(nil)

func NewDialEmbedder(client *dial.Client, deployment string) *DialEmbedder {
	return &DialEmbedder{client: client, deployment: deployment}
}

func (e *DialEmbedder) Embed(ctx context.Context, apiKey string, inputs []string) ([][]float64, error) {
	return e.client.Embeddings(ctx, e.deployment, apiKey, inputs)
}

// RagTool answers questions about a document by retrieving the most
// relevant chunks and generating a grounded answer from them. Chunked and
// embedded documents are cached per conversation so repeated questions
// about the same file skip the indexing step.
type RagTool struct {
	client     *dial.Client
	deployment string
	embedder   rag.Embedder
	splitter   *rag.Splitter
	documents  *rag.DocumentCache
	topK       int
}

var _ agentports.Tool = (*RagTool)(nil)

func NewRagTool(
	client *dial.Client,
	deployment string,
	embedder rag.Embedder,
	splitter *rag.Splitter,
	documents *rag.DocumentCache,
	topK int,
) *RagTool {
	if topK < 1 {
		topK = ragDefaultTopK
	}
	return &RagTool{
		client:     client,
		deployment: deployment,
		embedder:   embedder,
		splitter:   splitter,
		documents:  documents,
		topK:       topK,
	}
}

func (t *RagTool) Name() string { return ragToolName }

func (t *RagTool) ShowArgsInStage() bool { return false }

func (t *RagTool) Definition() dial.Tool {
	return dial.NewFunctionTool(ragToolName, ragDescription, ragSchema)
}

func (t *RagTool) Execute(ctx context.Context, call agentports.CallContext, args json.RawMessage) (agentports.ToolOutput, error) {
	var params ragArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("parse arguments: %w", err)
	}
	if params.Request == "" {
		return agentports.ToolOutput{}, fmt.Errorf("request is required")
	}
	if params.FileURL == "" {
		return agentports.ToolOutput{}, fmt.Errorf("file_url is required")
	}

	call.Stage.AppendContent("## Request arguments: \n")
	call.Stage.AppendContent(fmt.Sprintf("**Request**: %s\n\r", params.Request))
	call.Stage.AppendContent(fmt.Sprintf("**File URL**: %s\n\r", params.FileURL))

	// Index keys are conversation scoped so one conversation never reads
	// another's document.
	key := rag.CacheKey(call.ConversationID, params.FileURL)
	doc, ok := t.documents.Get(ctx, key)
	if !ok {
		filename, data, err := t.client.DownloadFile(ctx, call.APIKey, params.FileURL)
		if err != nil {
			return agentports.ToolOutput{}, err
		}
		text, err := extract.Text(filename, data)
		if err != nil || text == "" {
			call.Stage.AppendContent("## Response: \n")
			call.Stage.AppendContent(missingContentMessage + "\n")
			return agentports.ToolOutput{Text: missingContentMessage}, nil
		}
		chunks := t.splitter.Split(text)
		if len(chunks) == 0 {
			call.Stage.AppendContent("## Response: \n")
			call.Stage.AppendContent(missingContentMessage + "\n")
			return agentports.ToolOutput{Text: missingContentMessage}, nil
		}
		vectors, err := t.embedder.Embed(ctx, call.APIKey, chunks)
		if err != nil {
			return agentports.ToolOutput{}, fmt.Errorf("embed document: %w", err)
		}
		doc = &rag.Document{Chunks: chunks, Vectors: vectors}
		if err := t.documents.Put(ctx, key, doc); err != nil {
			return agentports.ToolOutput{}, fmt.Errorf("cache document: %w", err)
		}
	}

	index, err := doc.Index()
	if err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("build index: %w", err)
	}
	queryVectors, err := t.embedder.Embed(ctx, call.APIKey, []string{params.Request})
	if err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("embed request: %w", err)
	}
	if len(queryVectors) == 0 {
		return agentports.ToolOutput{}, fmt.Errorf("embed request: empty response")
	}

	indices, _, err := index.Search(queryVectors[0], min(t.topK, len(doc.Chunks)))
	if err != nil {
		return agentports.ToolOutput{}, err
	}
	retrieved := make([]string, 0, len(indices))
	for _, idx := range indices {
		retrieved = append(retrieved, doc.Chunks[idx])
	}
	augmented := fmt.Sprintf("CONTEXT:\n%s\n---\nREQUEST: %s", strings.Join(retrieved, "\n\n"), params.Request)

	call.Stage.AppendContent("## RAG Request: \n")
	call.Stage.AppendContent(fmt.Sprintf("```text\n\r%s\n\r```\n\r", augmented))
	call.Stage.AppendContent("## Response: \n")

	req := dial.ChatRequest{
		Messages: []dial.Message{
			{Role: dial.RoleSystem, Content: ragGenerationSystemPrompt},
			{Role: dial.RoleUser, Content: augmented},
		},
	}
	var answer strings.Builder
	err = t.client.ChatStream(ctx, t.deployment, call.APIKey, req, func(chunk dial.Chunk) error {
		for _, choice := range chunk.Choices {
			if choice.Index != 0 || choice.Delta.Content == "" {
				continue
			}
			call.Stage.AppendContent(choice.Delta.Content)
			answer.WriteString(choice.Delta.Content)
		}
		return nil
	})
	if err != nil {
		return agentports.ToolOutput{}, fmt.Errorf("generate answer: %w", err)
	}
	return agentports.ToolOutput{Text: answer.String()}, nil
}
