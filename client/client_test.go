package client

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-rpc/codec"
	"game-rpc/middleware"
	"game-rpc/registry"
	"game-rpc/rpc"
	"game-rpc/server"
	"game-rpc/transport"
)

type Scoreboard struct {
	mu    sync.Mutex
	total float64
}

func (s *Scoreboard) Add(_ context.Context, args []codec.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range args {
		if n, ok := a.(codec.Number); ok {
			s.total += float64(n)
		}
	}
	return nil
}

func (s *Scoreboard) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	srv := server.NewServer(server.Options{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Shutdown(2 * time.Second) })

	_, err = srv.RegisterVar(registry.Options{
		ServerName: "sv_test",
		ClientName: "cl_test",
		Default:    "5",
		Access:     transport.LevelAdmin,
	})
	require.NoError(t, err)
	return srv, l.Addr().String()
}

func dial(t *testing.T, addr string, opts Options) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "tcp", addr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitValue(t *testing.T, c *Client, name, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, ok := c.Get(name)
		return ok && v.Value == want
	}, 2*time.Second, 5*time.Millisecond, "%s never became %q", name, want)
}

func TestClientMirrorsVariables(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr, Options{})

	require.NoError(t, c.Ready())
	waitValue(t, c, "cl_test", "5")

	v, _ := c.Get("CL_TEST")
	assert.Equal(t, Var{ServerName: "sv_test", ClientName: "cl_test", Default: "5", Value: "5"}, v)
	assert.Len(t, c.Vars(), 1)

	require.NoError(t, srv.SetVar("sv_test", "8"))
	waitValue(t, c, "cl_test", "8")
}

func TestClientRequestChange(t *testing.T) {
	srv, addr := startServer(t)

	var mu sync.Mutex
	var notices []string
	var updates []string
	user := dial(t, addr, Options{
		OnNotice: func(text string) {
			mu.Lock()
			notices = append(notices, text)
			mu.Unlock()
		},
		OnUpdate: func(v Var, old string) {
			mu.Lock()
			updates = append(updates, old+"->"+v.Value)
			mu.Unlock()
		},
	})
	require.NoError(t, user.Ready())
	waitValue(t, user, "cl_test", "5")

	// denied: the server answers with the unchanged value and a notice
	require.NoError(t, user.RequestChange("cl_test", "10"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notices) == 1
	}, 2*time.Second, 5*time.Millisecond)
	v, _ := srv.VarValue("sv_test")
	assert.Equal(t, "5", v)

	admin := dial(t, addr, Options{})
	require.NoError(t, admin.Ready())
	waitValue(t, admin, "cl_test", "5")
	require.Eventually(t, func() bool { return srv.Hub().Len() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, srv.SetAccess("peer-2", transport.LevelAdmin))

	require.NoError(t, admin.RequestChange("cl_test", "10"))
	waitValue(t, admin, "cl_test", "10")
	waitValue(t, user, "cl_test", "10")

	mu.Lock()
	assert.Equal(t, []string{"5->5", "5->10"}, updates)
	mu.Unlock()

	assert.ErrorIs(t, user.RequestChange("cl_missing", "1"), ErrUnknownVar)
}

func TestClientRunsCalls(t *testing.T) {
	srv, addr := startServer(t)
	board := &Scoreboard{}
	router := rpc.NewRouter()
	require.NoError(t, router.Register(board))

	got := make(chan []codec.Value, 1)
	router.Handle("hud.banner", func(_ context.Context, args []codec.Value) error {
		got <- args
		return nil
	})

	var seen sync.Map
	trace := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *middleware.Request) error {
			seen.Store(req.Type.String(), true)
			return next(ctx, req)
		}
	}
	dial(t, addr, Options{Router: router, Middlewares: []middleware.Middleware{trace}})
	require.Eventually(t, func() bool { return srv.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Call(transport.All(), "Scoreboard.Add", 1, 2, 3.5))
	require.Eventually(t, func() bool { return board.Total() == 6.5 }, 2*time.Second, 5*time.Millisecond)

	big := strings.Repeat("z", 100_000)
	require.NoError(t, srv.Dispatcher().CallLarge(transport.All(), "hud.banner", big))
	select {
	case args := <-got:
		require.Len(t, args, 1)
		assert.Equal(t, codec.String(big), args[0])
	case <-time.After(2 * time.Second):
		t.Fatal("chunked call never arrived")
	}

	_, call := seen.Load("Call")
	_, chunk := seen.Load("CallChunk")
	assert.True(t, call)
	assert.True(t, chunk)
}

func TestClientCallTimeout(t *testing.T) {
	srv, addr := startServer(t)
	router := rpc.NewRouter()
	deadlines := make(chan bool, 1)
	router.Handle("slow", func(ctx context.Context, _ []codec.Value) error {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return nil
	})
	dial(t, addr, Options{Router: router, CallTimeout: time.Second})
	require.Eventually(t, func() bool { return srv.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Call(transport.All(), "slow"))
	select {
	case ok := <-deadlines:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("call never arrived")
	}
}

func TestClientHeartbeatKeepsConnection(t *testing.T) {
	srv := server.NewServer(server.Options{ReadTimeout: 100 * time.Millisecond})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Shutdown(2 * time.Second) })

	c := dial(t, l.Addr().String(), Options{Heartbeat: 20 * time.Millisecond})
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, srv.Hub().Len())

	select {
	case <-c.Done():
		t.Fatal("client was disconnected")
	default:
	}
}

func TestClientDoneWhenServerStops(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr, Options{})
	require.Eventually(t, func() bool { return srv.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Shutdown(time.Second))
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not see the server go away")
	}
}
