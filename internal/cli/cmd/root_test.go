package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapgen/internal/genapi"
	"mapgen/internal/generation"
	"mapgen/internal/mockserver"
	"mapgen/internal/model"
)

// isolate points config and data directories at a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	t.Setenv("MAPGEN_SERVER_URL", "")
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	isolate(t)
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	return ee.Code
}

func mockService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := mockserver.New(mockserver.Options{QueueFor: 10 * time.Millisecond, ProcessFor: 10 * time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestExitFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unreachable", err: fmt.Errorf("%w: dial tcp", genapi.ErrUnreachable), want: ExitUnreachable},
		{name: "unreachable submission", err: &generation.Error{Kind: generation.KindSubmission, Op: "submit", Err: genapi.ErrUnreachable}, want: ExitUnreachable},
		{name: "submission", err: &generation.Error{Kind: generation.KindSubmission, Op: "submit", Err: errors.New("invalid biome")}, want: ExitSubmitError},
		{name: "download", err: &generation.Error{Kind: generation.KindDownload, Op: "download", Err: errors.New("disk full")}, want: ExitDownloadError},
		{name: "exit error passes through", err: &ExitError{Code: ExitJobFailed, Err: errors.New("x")}, want: ExitJobFailed},
		{name: "interrupted", err: context.Canceled, want: ExitCLIError},
		{name: "other", err: errors.New("boom"), want: ExitCLIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(t, exitFor(tt.err)))
		})
	}
	assert.NoError(t, exitFor(nil))
}

func TestRoot_PersistentFlags(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"server", "backend-version", "out-dir", "poll-interval", "request-timeout", "log-level", "log-format", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	for _, name := range []string{"generate", "tui", "plan", "status", "previews", "download", "doctor", "mock-server", "completion"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestGenerate_RequiresInputs(t *testing.T) {
	_, err := run(t, "generate", "--server", "http://gen.local")
	assert.Equal(t, ExitCLIError, exitCode(t, err))
	assert.ErrorContains(t, err, "--settings")

	_, err = run(t, "generate", "--settings", writeSettings(t, "seed: 1"))
	assert.Equal(t, ExitCLIError, exitCode(t, err))
	assert.ErrorContains(t, err, "MAPGEN_SERVER_URL")
}

func TestPlan(t *testing.T) {
	out, err := run(t, "plan", "--server", "gen.local:9000", "--backend-version", "v2", "--settings", writeSettings(t, "seed: 42\nbiome: tundra\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "POST http://gen.local:9000/api/generate")
	assert.Contains(t, out, "v2")
	assert.Contains(t, out, `"biome": "tundra"`)
	assert.NotContains(t, out, "auxiliaryData")
}

func TestGenerate_PlainDownload(t *testing.T) {
	ts := mockService(t)
	dir := t.TempDir()

	out, err := run(t, "generate", "--server", ts.URL, "--settings", writeSettings(t, "seed: 7\n"),
		"--no-ui", "--download", "-o", dir, "--poll-interval", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, "[queued]")
	assert.Contains(t, out, "[completed]")
	assert.Contains(t, out, "heightmap.png")
	assert.Contains(t, out, "Saved: ")

	matches, err := filepath.Glob(filepath.Join(dir, "map-*.zip"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestGenerate_NoDownloadWhenNotInteractive(t *testing.T) {
	ts := mockService(t)
	out, err := run(t, "generate", "--server", ts.URL, "--settings", writeSettings(t, "seed: 7\n"),
		"--no-ui", "--poll-interval", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Download later with: mapgen download ")
}

func TestGenerate_JobFailed(t *testing.T) {
	ts := mockService(t)
	_, err := run(t, "generate", "--server", ts.URL, "--settings", writeSettings(t, "fail: true\n"),
		"--no-ui", "--poll-interval", "5ms")
	assert.Equal(t, ExitJobFailed, exitCode(t, err))
	assert.ErrorContains(t, err, "simulated failure")
}

func TestGenerate_SilentSubmission(t *testing.T) {
	ts := mockService(t)
	out, err := run(t, "generate", "--server", ts.URL, "--settings", writeSettings(t, "silent: true\n"), "--no-ui")
	require.NoError(t, err)
	assert.Contains(t, out, "completion cannot be tracked")
}

func TestGenerate_NoWait(t *testing.T) {
	ts := mockService(t)
	out, err := run(t, "generate", "--server", ts.URL, "--settings", writeSettings(t, "seed: 1\n"), "--no-ui", "--wait=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted: task ")
}

func TestGenerate_SubmissionRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid biome"}`))
	}))
	defer ts.Close()

	_, err := run(t, "generate", "--server", ts.URL, "--settings", writeSettings(t, "biome: lava\n"), "--no-ui")
	assert.Equal(t, ExitSubmitError, exitCode(t, err))
	assert.ErrorContains(t, err, "invalid biome")
}

func TestGenerate_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := run(t, "generate", "--server", url, "--settings", writeSettings(t, "seed: 1\n"), "--no-ui")
	assert.Equal(t, ExitUnreachable, exitCode(t, err))
}

func TestStatusPreviewsDownload(t *testing.T) {
	ts := mockService(t)
	client, err := genapi.NewClient(genapi.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	sub, err := client.Submit(context.Background(), model.GenerateRequest{Settings: model.Document{"seed": 3}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := client.Status(context.Background(), sub.TaskID)
		return err == nil && res.Status == genapi.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	out, err := run(t, "status", "--server", ts.URL, sub.TaskID)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: Completed")

	out, err = run(t, "previews", "--server", ts.URL, sub.TaskID)
	require.NoError(t, err)
	assert.Contains(t, out, "heightmap.png")

	dir := t.TempDir()
	out, err = run(t, "download", "--server", ts.URL, "-o", dir, sub.TaskID)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved: ")

	_, err = run(t, "download", "--server", ts.URL, "-o", dir, "missing")
	assert.Equal(t, ExitDownloadError, exitCode(t, err))
}

func TestDoctor(t *testing.T) {
	ts := mockService(t)
	out, err := run(t, "doctor", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "(reachable)")

	ts.Close()
	_, err = run(t, "doctor", "--server", ts.URL)
	assert.Equal(t, ExitUnreachable, exitCode(t, err))
}

func TestCompletion(t *testing.T) {
	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "mapgen")

	_, err = run(t, "completion", "tcsh")
	assert.Error(t, err)
}
