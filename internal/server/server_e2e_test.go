package server

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/aura-assistant/aura-core/internal/database"
	"github.com/aura-assistant/aura-core/internal/interpreter"
	"github.com/aura-assistant/aura-core/internal/model"
	"github.com/aura-assistant/aura-core/internal/resolver"
	"github.com/aura-assistant/aura-core/internal/router"
)

// pickFreePort tries to get a free TCP port on 127.0.0.1
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func TestSSEServer_ListTools(t *testing.T) {
	store, err := database.NewStore(&database.Config{URL: "file:server-e2e?mode=memory&cache=shared"})
	require.NoError(t, err)
	defer store.Close()

	provider := model.NewMockProvider(`[{"action":"show_lists"}]`)
	rt := router.New(store, interpreter.New(provider), resolver.New(store))
	srv := NewMCPServer(store, rt)

	port, err := pickFreePort()
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	endpoint := "/sse"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.RunSSE(ctx, addr, endpoint) }()

	// wait briefly for server to bind
	time.Sleep(150 * time.Millisecond)

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "test"}, nil)
	transport := mcp.NewSSEClientTransport("http://"+addr+endpoint, nil)

	// retry connect a few times to avoid flakes
	var session *mcp.ClientSession
	for i := 0; i < 5; i++ {
		session, err = client.Connect(ctx, transport)
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.NotEmpty(t, tools.Tools)

	names := make(map[string]bool, len(tools.Tools))
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"process_utterance", "show_lists", "show_tasks", "search_tasks", "completed_tasks", "deleted_tasks", "audit_trail", "health_check"} {
		require.True(t, names[want], "missing tool %s", want)
	}
}
