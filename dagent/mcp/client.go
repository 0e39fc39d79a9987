// Package mcp bridges remote Model Context Protocol servers into the
// agent: tool discovery, tool calls and resource reads over the
// streamable HTTP transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor is the declaration of one remote tool, with its input
// schema re-encoded as raw JSON for the model-facing declaration.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// transportBuilder builds the wire transport for an endpoint. A
// variable so tests can swap in in-memory transports.
var transportBuilder = func(endpoint string) (mcpsdk.Transport, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("mcp endpoint is empty")
	}
	return &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil
}

// Client is a lazily connected MCP client for one server. The first
// operation dials the server; a failed connect is remembered and
// returned to every later call.
type Client struct {
	endpoint  string
	impl      *mcpsdk.Client
	transport func() (mcpsdk.Transport, error)

	connectOnce sync.Once
	connectErr  error
	session     *mcpsdk.ClientSession
}

// Option configures a Client.
type Option func(*Client)

// WithTransport pins the wire transport instead of deriving it from the
// endpoint, for talking to in-process servers.
func WithTransport(transport mcpsdk.Transport) Option {
	return func(c *Client) {
		c.transport = func() (mcpsdk.Transport, error) { return transport, nil }
	}
}

// NewClient creates a client for the MCP server at endpoint. No network
// traffic happens until the first call.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		impl: mcpsdk.NewClient(&mcpsdk.Implementation{
			Name:    "dialagent",
			Version: "1.0.0",
		}, nil),
	}
	c.transport = func() (mcpsdk.Transport, error) { return transportBuilder(c.endpoint) }
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the server address this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.connectOnce.Do(func() {
		transport, err := c.transport()
		if err != nil {
			c.connectErr = fmt.Errorf("mcp server %s: %w", c.endpoint, err)
			return
		}
		session, err := c.impl.Connect(ctx, transport, nil)
		if err != nil {
			c.connectErr = fmt.Errorf("connect to mcp server %s: %w", c.endpoint, err)
			return
		}
		c.session = session
	})
	return c.connectErr
}

// ListTools returns the declarations of all tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	var descriptors []ToolDescriptor
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools from %s: %w", c.endpoint, err)
		}
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encode schema of tool %q: %w", tool.Name, err)
		}
		descriptors = append(descriptors, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schema,
		})
	}
	return descriptors, nil
}

// CallTool invokes a remote tool and returns the text of its first text
// content item; an empty string when the result carries none.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return "", err
	}
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %q on %s: %w", name, c.endpoint, err)
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			return text.Text, nil
		}
	}
	return "", nil
}

// Resource is one fetched resource. Text carries textual content; Blob
// carries binary content. Exactly one of them is populated.
type Resource struct {
	URI      string
	MIMEType string
	Text     string
	Blob     []byte
}

// Bytes returns the resource payload regardless of its content kind.
func (r *Resource) Bytes() []byte {
	if len(r.Blob) > 0 {
		return r.Blob
	}
	return []byte(r.Text)
}

// ReadResource fetches a resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*Resource, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	result, err := c.session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("read resource %q from %s: %w", uri, c.endpoint, err)
	}
	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("resource %q has no contents", uri)
	}
	contents := result.Contents[0]
	return &Resource{
		URI:      contents.URI,
		MIMEType: contents.MIMEType,
		Text:     contents.Text,
		Blob:     contents.Blob,
	}, nil
}

// Close shuts the session down. Safe to call on a never connected
// client.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
