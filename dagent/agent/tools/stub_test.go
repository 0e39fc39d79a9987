package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	agentports "github.com/ZanzyTHEbar/dialagent/dagent/agent/ports"
	"github.com/ZanzyTHEbar/dialagent/dagent/dial"
	"github.com/ZanzyTHEbar/dialagent/dagent/mcp"
)

type stubStage struct {
	mu          sync.Mutex
	name        string
	content     strings.Builder
	attachments []dial.Attachment
	closed      bool
	closedOK    bool
}

var _ agentports.Stage = (*stubStage)(nil)

func (s *stubStage) AppendName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name += name
}

func (s *stubStage) AppendContent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content.WriteString(text)
}

func (s *stubStage) AddAttachment(attachment dial.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = append(s.attachments, attachment)
}

func (s *stubStage) Close(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closedOK = ok
}

func (s *stubStage) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.String()
}

type stubChoice struct {
	mu          sync.Mutex
	content     strings.Builder
	attachments []dial.Attachment
}

var _ agentports.ChoiceSink = (*stubChoice)(nil)

func (c *stubChoice) AppendContent(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content.WriteString(text)
}

func (c *stubChoice) AddAttachment(attachment dial.Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments = append(c.attachments, attachment)
}

func (c *stubChoice) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content.String()
}

func newTestCall(stage *stubStage, choice *stubChoice) agentports.CallContext {
	return agentports.CallContext{
		APIKey:         "test-key",
		ConversationID: "conv-1",
		Choice:         choice,
		Stage:          stage,
	}
}

// writeSSE streams the given chunk payloads followed by the done marker.
func writeSSE(t *testing.T, w http.ResponseWriter, payloads ...string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	for _, payload := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// connectInMemoryMCP wires a client to an in-process MCP server and tears
// both down when the test finishes.
func connectInMemoryMCP(t *testing.T, server *mcpsdk.Server) *mcp.Client {
	t.Helper()
	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		session, err := server.Connect(ctx, serverTransport, nil)
		ready <- err
		if err != nil {
			return
		}
		<-ctx.Done()
		_ = session.Close()
	}()

	client := mcp.NewClient("inmemory", mcp.WithTransport(clientTransport))
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		<-done
		require.NoError(t, <-ready)
	})
	return client
}
