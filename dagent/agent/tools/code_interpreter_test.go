package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/mcp"
)

var testPNG = []byte{0x89, 'P', 'N', 'G'}

func newInterpreterServer(t *testing.T) *mcpsdk.Server {
	t.Helper()
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "interpreter", Version: "test"}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        "execute_code",
		Description: "Executes Python code in a persistent session",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"code":       {Type: "string"},
				"session_id": {Type: "string"},
			},
			Required: []string{"code"},
		},
	}, func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]any
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		code, _ := args["code"].(string)

		var response string
		switch {
		case strings.Contains(code, "notjson"):
			response = "oops"
		case strings.Contains(code, "longprint"):
			payload, err := json.Marshal(map[string]any{
				"success":    true,
				"output":     []string{strings.Repeat("x", 250)},
				"session_id": "sess-1",
			})
			if err != nil {
				return nil, err
			}
			response = string(payload)
		case strings.Contains(code, "plot"):
			response = `{"success":true,"output":["saved plot"],"session_id":"sess-9",` +
				`"files":[{"name":"plot.png","uri":"resource://plot.png","mime_type":"image/png","size":4}]}`
		default:
			response = `{"success":true,"output":["4"],"session_id":"sess-1"}`
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: response}},
		}, nil
	})

	server.AddResource(&mcpsdk.Resource{
		URI:      "resource://plot.png",
		Name:     "plot.png",
		MIMEType: "image/png",
	}, func(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "image/png",
				Blob:     testPNG,
			}},
		}, nil
	})

	return server
}

func newInterpreterClient(t *testing.T) *mcp.Client {
	t.Helper()
	return connectInMemoryMCP(t, newInterpreterServer(t))
}

type uploadRecord struct {
	path string
	data []byte
}

type bucketTestServer struct {
	*httptest.Server

	mu      sync.Mutex
	uploads []uploadRecord
}

func newBucketTestServer(t *testing.T) *bucketTestServer {
	t.Helper()
	s := &bucketTestServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bucket", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"bucket":"BUCKET","appdata":"BUCKET/appdata/dialagent"}`)
	})
	mux.HandleFunc("/v1/files/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		s.mu.Lock()
		s.uploads = append(s.uploads, uploadRecord{path: r.URL.Path, data: data})
		s.mu.Unlock()
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newInterpreterTool(t *testing.T) (*PythonCodeInterpreterTool, *bucketTestServer) {
	t.Helper()
	server := newBucketTestServer(t)
	tool, err := NewPythonCodeInterpreterTool(context.Background(),
		dial.NewClient(server.URL), newInterpreterClient(t), "execute_code")
	require.NoError(t, err)
	return tool, server
}

func TestCodeInterpreterResolvesRemoteTool(t *testing.T) {
	tool, _ := newInterpreterTool(t)

	assert.Equal(t, "execute_code", tool.Name())
	assert.False(t, tool.ShowArgsInStage())
	def := tool.Definition()
	assert.Equal(t, "execute_code", def.Function.Name)
	assert.Contains(t, def.Function.Description, "persistent session")

	var schema map[string]any
	require.NoError(t, json.Unmarshal(def.Function.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestCodeInterpreterUnknownRemoteTool(t *testing.T) {
	server := newBucketTestServer(t)
	_, err := NewPythonCodeInterpreterTool(context.Background(),
		dial.NewClient(server.URL), newInterpreterClient(t), "run_java")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_java")
}

func TestCodeInterpreterExecute(t *testing.T) {
	tool, server := newInterpreterTool(t)

	stage := &stubStage{}
	out, err := tool.Execute(context.Background(), newTestCall(stage, &stubChoice{}),
		json.RawMessage(`{"code":"print(2+2)"}`))
	require.NoError(t, err)

	var result executionResult
	require.NoError(t, json.Unmarshal([]byte(out.Text), &result))
	assert.True(t, result.Success)
	assert.Equal(t, []string{"4"}, result.Output)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Empty(t, result.Instructions)

	staged := stage.String()
	assert.Contains(t, staged, "```python\nprint(2+2)\n```\n")
	assert.Contains(t, staged, "New session will be created\n")
	assert.Contains(t, staged, "## Response: \n")
	assert.Contains(t, staged, "```json\n\r")

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Empty(t, server.uploads)
}

func TestCodeInterpreterReportsSession(t *testing.T) {
	tool, _ := newInterpreterTool(t)

	stage := &stubStage{}
	_, err := tool.Execute(context.Background(), newTestCall(stage, &stubChoice{}),
		json.RawMessage(`{"code":"x=1","session_id":"sess-1"}`))
	require.NoError(t, err)
	assert.Contains(t, stage.String(), "**session_id**: sess-1")
	assert.NotContains(t, stage.String(), "New session will be created")
}

func TestCodeInterpreterUploadsGeneratedFiles(t *testing.T) {
	tool, server := newInterpreterTool(t)

	stage := &stubStage{}
	choice := &stubChoice{}
	out, err := tool.Execute(context.Background(), newTestCall(stage, choice),
		json.RawMessage(`{"code":"plot(data)"}`))
	require.NoError(t, err)

	server.mu.Lock()
	require.Len(t, server.uploads, 1)
	assert.Equal(t, "/v1/files/BUCKET/appdata/dialagent/plot.png", server.uploads[0].path)
	assert.Equal(t, testPNG, server.uploads[0].data)
	server.mu.Unlock()

	require.Len(t, stage.attachments, 1)
	assert.Equal(t, "files/BUCKET/appdata/dialagent/plot.png", stage.attachments[0].URL)
	assert.Equal(t, "image/png", stage.attachments[0].Type)
	assert.Equal(t, "plot.png", stage.attachments[0].Title)
	assert.Equal(t, stage.attachments, choice.attachments)

	var result executionResult
	require.NoError(t, json.Unmarshal([]byte(out.Text), &result))
	assert.Equal(t, "Generates files have been provided to user, DON'T include links to them in response!", result.Instructions)
}

func TestCodeInterpreterTruncatesOutput(t *testing.T) {
	tool, _ := newInterpreterTool(t)

	out, err := tool.Execute(context.Background(), newTestCall(&stubStage{}, &stubChoice{}),
		json.RawMessage(`{"code":"longprint()"}`))
	require.NoError(t, err)

	var result executionResult
	require.NoError(t, json.Unmarshal([]byte(out.Text), &result))
	require.Len(t, result.Output, 1)
	assert.Len(t, result.Output[0], interpreterOutputLimit)
}

func TestCodeInterpreterMalformedResponse(t *testing.T) {
	tool, _ := newInterpreterTool(t)

	_, err := tool.Execute(context.Background(), newTestCall(&stubStage{}, &stubChoice{}),
		json.RawMessage(`{"code":"notjson"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse interpreter response")
}

func TestCodeInterpreterCodeRequired(t *testing.T) {
	tool, _ := newInterpreterTool(t)

	_, err := tool.Execute(context.Background(), newTestCall(&stubStage{}, &stubChoice{}),
		json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code")
}
