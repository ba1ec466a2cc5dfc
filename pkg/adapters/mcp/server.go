package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/crosschain"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/health"
	"github.com/aretw0/crosschain/pkg/registry"
	"github.com/aretw0/crosschain/pkg/router"
	"github.com/aretw0/crosschain/pkg/state"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ChainsURI is the resource listing the registered chains.
const ChainsURI = "crosschain://chains"

// Mesh is what the MCP server needs from a crosschain mesh.
type Mesh interface {
	Route(ctx context.Context, msg domain.Message) domain.RouteResult
	Registry() *registry.Registry
	Router() *router.Router
	State() *state.Manager
	Health() *health.Service
}

// ChainInfo describes one registered chain.
type ChainInfo struct {
	ID       string   `json:"id" jsonschema_description:"Chain ID"`
	Handlers []string `json:"handlers" jsonschema_description:"Message types the chain handles"`
}

// ChainsResponse lists the registered chains in registration order.
type ChainsResponse struct {
	Chains []ChainInfo `json:"chains" jsonschema_description:"Registered chains"`
}

// RouteResponse aligns with the HTTP RouteResult schema.
type RouteResponse struct {
	ChainID       string `json:"chain_id" jsonschema_description:"Destination chain"`
	Success       bool   `json:"success" jsonschema_description:"Whether the handler ran without error"`
	Value         any    `json:"value,omitempty" jsonschema_description:"Handler return value"`
	Error         string `json:"error,omitempty" jsonschema_description:"Failure reason"`
	CorrelationID string `json:"correlation_id" jsonschema_description:"Correlation ID of the delivery"`
}

// StateResponse is one shared state entry.
type StateResponse struct {
	Key     string `json:"key" jsonschema_description:"State key"`
	Present bool   `json:"present" jsonschema_description:"False when the key is absent"`
	Value   any    `json:"value,omitempty" jsonschema_description:"Stored value"`
}

// RouteArgs are the arguments of route_message.
type RouteArgs struct {
	ChainID       string `json:"chain_id"`
	Type          string `json:"type"`
	Payload       string `json:"payload"`
	SourceChainID string `json:"source_chain_id"`
}

// KeyArgs are the arguments of get_state.
type KeyArgs struct {
	Key string `json:"key"`
}

// SetStateArgs are the arguments of set_state.
type SetStateArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ChainArgs are the arguments of chain_health.
type ChainArgs struct {
	ChainID string `json:"chain_id"`
}

// Server wraps a Mesh and exposes it as an MCP Server.
type Server struct {
	mesh      Mesh
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(mesh Mesh) *Server {
	s := &Server{
		mesh:      mesh,
		mcpServer: server.NewMCPServer("crosschain-mcp", strings.TrimSpace(crosschain.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP endpoints over SSE on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_chains
	s.mcpServer.AddTool(mcp.NewTool("list_chains",
		mcp.WithDescription("List registered chains and the message types they handle."),
		mcp.WithOutputSchema[ChainsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListChains))

	// TOOL: route_message
	s.mcpServer.AddTool(mcp.NewTool("route_message",
		mcp.WithDescription("Route a message to a chain and return the handler's result."),
		mcp.WithString("chain_id", mcp.Required(), mcp.Description("Destination chain ID")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Message type")),
		mcp.WithString("payload", mcp.Description("JSON payload (optional, plain strings are sent as-is)")),
		mcp.WithString("source_chain_id", mcp.Description("Sender chain ID (optional)")),
		mcp.WithOutputSchema[RouteResponse](),
	), mcp.NewStructuredToolHandler(s.handleRouteMessage))

	// TOOL: get_state
	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Read a shared state key."),
		mcp.WithString("key", mcp.Required(), mcp.Description("State key")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	// TOOL: set_state
	s.mcpServer.AddTool(mcp.NewTool("set_state",
		mcp.WithDescription("Write a shared state key, notifying its subscribers."),
		mcp.WithString("key", mcp.Required(), mcp.Description("State key")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON value (plain strings are stored as-is)")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetState))

	// TOOL: chain_health
	s.mcpServer.AddTool(mcp.NewTool("chain_health",
		mcp.WithDescription("Check the health of one chain, or of every chain when chain_id is omitted."),
		mcp.WithString("chain_id", mcp.Description("Chain ID (optional)")),
	), s.handleChainHealth)
}

// decodeJSONArg parses a JSON argument, falling back to the raw string.
func decodeJSONArg(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func (s *Server) chains() ChainsResponse {
	ids := s.mesh.Registry().List()
	out := ChainsResponse{Chains: make([]ChainInfo, 0, len(ids))}
	for _, id := range ids {
		out.Chains = append(out.Chains, ChainInfo{ID: id, Handlers: s.mesh.Router().Handlers(id)})
	}
	return out
}

// Handler methods for structured tools

func (s *Server) handleListChains(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (ChainsResponse, error) {
	return s.chains(), nil
}

func (s *Server) handleRouteMessage(ctx context.Context, request mcp.CallToolRequest, args RouteArgs) (RouteResponse, error) {
	if args.ChainID == "" || args.Type == "" {
		return RouteResponse{}, fmt.Errorf("chain_id and type are required")
	}

	res := s.mesh.Route(ctx, domain.Message{
		Type:        args.Type,
		Source:      domain.Address{ChainID: args.SourceChainID},
		Destination: args.ChainID,
		Payload:     decodeJSONArg(args.Payload),
	})

	out := RouteResponse{
		ChainID:       res.ChainID,
		Success:       res.Success,
		Value:         res.Value,
		CorrelationID: res.CorrelationID,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args KeyArgs) (StateResponse, error) {
	v, ok, err := s.mesh.State().Get(ctx, args.Key)
	if err != nil {
		return StateResponse{}, fmt.Errorf("get_state failed: %w", err)
	}
	return StateResponse{Key: args.Key, Present: ok, Value: v}, nil
}

func (s *Server) handleSetState(ctx context.Context, request mcp.CallToolRequest, args SetStateArgs) (StateResponse, error) {
	if args.Key == "" {
		return StateResponse{}, fmt.Errorf("key is required")
	}
	v := decodeJSONArg(args.Value)
	if err := s.mesh.State().Set(ctx, args.Key, v); err != nil {
		return StateResponse{}, fmt.Errorf("set_state failed: %w", err)
	}
	return StateResponse{Key: args.Key, Present: true, Value: v}, nil
}

func (s *Server) handleChainHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID := request.GetString("chain_id", "")

	var report any
	if chainID == "" {
		report = s.mesh.Health().Dashboard(ctx)
	} else {
		r, err := s.mesh.Health().Check(ctx, chainID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		report = r
	}

	jsonBytes, _ := json.Marshal(report)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: crosschain://chains
	s.mcpServer.AddResource(mcp.NewResource(ChainsURI, "Registered Chains",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.chains())
		if err != nil {
			return nil, fmt.Errorf("failed to encode chains: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ChainsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
