package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/MarkKirilenko/tranning-app/pkg/errors"
	"github.com/MarkKirilenko/tranning-app/pkg/fitness"
	"github.com/MarkKirilenko/tranning-app/pkg/router"
	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

// memStore is a minimal in-memory fitness.Store for transport tests. Its
// methods fail on a canceled context, like database/sql calls do.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*fitness.User
	nextID int64
}

var _ fitness.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*fitness.User)}
}

func (m *memStore) FindUser(ctx context.Context, username string) (*fitness.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[username], nil
}

func (m *memStore) CreateUser(ctx context.Context, username, password, phone, dob string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, has := m.users[username]; has {
		return &apperrors.DuplicateUserError{Username: username}
	}

	m.nextID++
	m.users[username] = &fitness.User{ID: m.nextID, Username: username, Password: password, Phone: phone, DOB: dob}
	return nil
}

func (m *memStore) QueryExercises(_ context.Context, _, _, _ string) ([]fitness.Exercise, error) {
	return nil, nil
}

func (m *memStore) RecordProgress(_ context.Context, _ int64, _ string) error { return nil }

func (m *memStore) SaveWorkoutHistory(_ context.Context, _ int64, _ string, _ []any, _ int64) (int64, error) {
	return 1, nil
}

func (m *memStore) ListWorkoutHistory(_ context.Context, _ int64) ([]fitness.WorkoutEntry, error) {
	return nil, nil
}

func (m *memStore) ListUserPlans(_ context.Context, _ int64) ([]fitness.SavedPlan, error) {
	return nil, nil
}

func (m *memStore) FindPlanByID(_ context.Context, _, _ int64) (*fitness.SavedPlan, error) {
	return nil, nil
}

func (m *memStore) SaveUserPlan(_ context.Context, _ int64, _, _, _, _ string, _ []any) (int64, error) {
	return 1, nil
}

func (m *memStore) ListProgress(_ context.Context, _ int64) ([]fitness.ProgressEntry, error) {
	return nil, nil
}

type staticNutrition struct{}

func (staticNutrition) Plan(goal string) (map[string]any, error) {
	if goal != "weight_loss" {
		return nil, &apperrors.NutritionPlanNotFoundError{Goal: goal}
	}
	return map[string]any{"calories": float64(1800)}, nil
}

// startTestServer runs a server on a random loopback port and returns its
// address plus the cancel func and a channel that closes when Start returns.
func startTestServer(t *testing.T) (string, context.CancelFunc, <-chan struct{}) {
	t.Helper()

	rt := router.New(newMemStore(), staticNutrition{}, zap.NewNop())
	srv, err := CreateTcpServer(rt, TcpServerParams{
		ListenAddress:      "127.0.0.1:0",
		AcceptPollInterval: 50 * time.Millisecond,
		Logger:             zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Start(ctx)
	}()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start listening")
	}

	t.Cleanup(cancel)
	return srv.BoundAddr().String(), cancel, done
}

func dialServer(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func sendLine(t *testing.T, conn net.Conn, msg wire.Message) {
	t.Helper()

	raw, err := wire.Encode(msg)
	require.NoError(t, err)
	_, err = conn.Write(raw)
	require.NoError(t, err)
}

func readLine(t *testing.T, r *bufio.Reader) wire.Message {
	t.Helper()

	line, err := r.ReadString('\n')
	require.NoError(t, err)

	var msg wire.Message
	require.NoError(t, json.Unmarshal([]byte(line), &msg))
	return msg
}

func TestServer_RegisterAndLogin(t *testing.T) {
	addr, _, _ := startTestServer(t)
	conn, r := dialServer(t, addr)

	sendLine(t, conn, wire.Message{"action": "register", "username": "mark", "password": "secret"})
	resp := readLine(t, r)
	assert.Equal(t, "register", resp.Action())
	assert.True(t, resp.Bool("success"))

	sendLine(t, conn, wire.Message{"action": "register", "username": "mark", "password": "secret"})
	resp = readLine(t, r)
	assert.False(t, resp.Bool("success"))
	assert.NotEmpty(t, resp.String("message"))

	sendLine(t, conn, wire.Message{"action": "login", "username": "mark", "password": "secret"})
	resp = readLine(t, r)
	assert.Equal(t, "auth", resp.Action())
	assert.True(t, resp.Bool("success"))
	assert.Equal(t, "mark", resp.String("username"))
}

func TestServer_MalformedLineKeepsConnectionUsable(t *testing.T) {
	addr, _, _ := startTestServer(t)
	conn, r := dialServer(t, addr)

	_, err := conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	resp := readLine(t, r)
	assert.Equal(t, "Invalid JSON", resp.String("error"))

	// The same connection still serves valid requests.
	sendLine(t, conn, wire.Message{"action": "get_nutrition_plan", "goal": "weight_loss"})
	resp = readLine(t, r)
	assert.Equal(t, "nutrition_plan", resp.Action())
	assert.True(t, resp.Bool("success"))
}

func TestServer_SequentialOrdering(t *testing.T) {
	addr, _, _ := startTestServer(t)
	conn, r := dialServer(t, addr)

	// Both requests hit the wire before any response is read; responses
	// must come back in request order.
	r1, err := wire.Encode(wire.Message{"action": "login", "username": "ghost", "password": "x"})
	require.NoError(t, err)
	r2, err := wire.Encode(wire.Message{"action": "bogus"})
	require.NoError(t, err)
	_, err = conn.Write(append(r1, r2...))
	require.NoError(t, err)

	first := readLine(t, r)
	assert.Equal(t, "auth", first.Action())

	second := readLine(t, r)
	assert.Equal(t, "Unknown action", second.String("error"))
	assert.Equal(t, "bogus", second.String("action"))
}

func TestServer_MultipleConcurrentConnections(t *testing.T) {
	addr, _, _ := startTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

			raw, _ := wire.Encode(wire.Message{"action": "get_nutrition_plan", "goal": "weight_loss"})
			if _, err := conn.Write(raw); err != nil {
				t.Error(err)
				return
			}

			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				t.Error(err)
				return
			}

			var resp wire.Message
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				t.Error(err)
				return
			}
			if !resp.Bool("success") {
				t.Errorf("unexpected response: %v", resp)
			}
		}()
	}
	wg.Wait()
}

func TestServer_ShutdownStopsAcceptingWhileOpenConnectionsDrain(t *testing.T) {
	addr, cancel, done := startTestServer(t)

	conn, r := dialServer(t, addr)

	sendLine(t, conn, wire.Message{"action": "register", "username": "mark", "password": "secret"})
	resp := readLine(t, r)
	require.True(t, resp.Bool("success"))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not exit after shutdown")
	}

	// The already-open connection keeps serving, including store-backed
	// requests: the shutdown cancelation must not reach the store.
	sendLine(t, conn, wire.Message{"action": "login", "username": "mark", "password": "secret"})
	resp = readLine(t, r)
	assert.Equal(t, "auth", resp.Action())
	assert.True(t, resp.Bool("success"))

	// New connections are refused once the listener is gone.
	if newConn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		newConn.Close()
		t.Fatal("expected dial to fail after shutdown")
	}
}
