package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/career"
	"github.com/fyrsmithlabs/careerd/internal/config"
	"github.com/fyrsmithlabs/careerd/internal/service"
	"github.com/fyrsmithlabs/careerd/internal/telemetry"
)

// setupEnv points every command at a local embedder, no generation model
// and a chromem store in a temp dir.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CAREERD_EMBEDDINGS_PROVIDER", config.ProviderLocal)
	t.Setenv("CAREERD_GENERATION_PROVIDER", config.ProviderNone)
	t.Setenv("CAREERD_VECTORSTORE_CHROMEM_PATH", t.TempDir())
	t.Setenv("CAREERD_LOG_LEVEL", "error")

	configPath = ""
	prev := appTelemetryOptions
	appTelemetryOptions = []telemetry.Option{
		telemetry.WithRegisterer(prometheus.NewRegistry()),
		telemetry.WithoutGlobal(),
	}
	t.Cleanup(func() { appTelemetryOptions = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)

	out := buf.String()
	assert.Contains(t, out, "careerd by Fyrsmith Labs")
	assert.Contains(t, out, "Version:    "+version)
	assert.Contains(t, out, "Commit:     "+gitCommit)
	assert.Contains(t, out, "Build Date: "+buildDate)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "version", "analyze", "recommend"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestAnalyzeCommand_RequiresUser(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "user" not set`)
}

func TestAnalyzeCommand_EmptyProfile(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "analyze", "--user", "alice")
	require.NoError(t, err)

	var res service.AnalyzeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 0, res.EvidenceCount)
}

func TestRecommendCommand_BlankUser(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "recommend", "--user", "   ")
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestNewApp_UploadAndRecommend(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := newApp(ctx, cfg, appTelemetryOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = a.svc.UploadCV(ctx, service.UploadRequest{UserID: "alice", Text: "SKILLS: sql, excel"})
	require.NoError(t, err)

	rec, err := a.svc.Recommend(ctx, "alice", []string{"finance"})
	require.NoError(t, err)
	assert.Equal(t, career.CareerDataAnalyst, rec.RecommendedCareer)
}

func TestNewApp_InvalidVectorStore(t *testing.T) {
	setupEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.VectorStore.Provider = "bogus"

	_, err = newApp(context.Background(), cfg, appTelemetryOptions...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening vector store")
}

type fakeServer struct {
	startErr error
	stopped  chan struct{}
	shutdown bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{stopped: make(chan struct{})}
}

func (s *fakeServer) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	<-s.stopped
	return nil
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.shutdown = true
	close(s.stopped)
	return nil
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, time.Second, zap.NewNop()) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, srv.shutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_StartError(t *testing.T) {
	srv := newFakeServer()
	srv.startErr = errors.New("address in use")

	err := serve(context.Background(), srv, time.Second, zap.NewNop())
	require.EqualError(t, err, "address in use")
	assert.False(t, srv.shutdown)
}
