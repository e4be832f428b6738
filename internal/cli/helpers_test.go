package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/devserver"
	"github.com/memeindex/memeindex/internal/output"
)

const (
	testAddress  = "EQabc...123"
	testUserID   = int64(1001)
	testUsername = "alice"
)

// saveGlobals saves all package-level globals and returns a restore function.
func saveGlobals(t *testing.T) func() {
	t.Helper()
	origCfg := cfg
	origLogger := logger
	origFormatter := formatter
	origCmdCtx := cmdCtx
	origHomeDir := homeDir
	origOutputFormat := outputFormat
	origVerbose := verbose
	origConnect := [...]string{connectAddress, connectInitData, connectUsername, connectFirstName, connectStartParam}
	origUserID := connectUserID
	origQR, origClear := referralQR, pendingClear
	origForce, origOnce := configForce, countdownOnce
	return func() {
		cfg = origCfg
		logger = origLogger
		formatter = origFormatter
		cmdCtx = origCmdCtx
		homeDir = origHomeDir
		outputFormat = origOutputFormat
		verbose = origVerbose
		connectAddress, connectInitData, connectUsername = origConnect[0], origConnect[1], origConnect[2]
		connectFirstName, connectStartParam = origConnect[3], origConnect[4]
		connectUserID = origUserID
		referralQR, pendingClear = origQR, origClear
		configForce, countdownOnce = origForce, origOnce
	}
}

// setupTestEnv points the CLI globals at a fresh home directory and an
// in-memory backend, with JSON output.
func setupTestEnv(t *testing.T) *devserver.Server {
	t.Helper()
	t.Cleanup(saveGlobals(t))

	srv := devserver.New(devserver.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg = config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Backend.URL = ts.URL
	cfg.Backend.RequestsPerSecond = 1000
	cfg.Backend.Burst = 1000
	cfg.Registration.BaseDelayMS = 1
	cfg.Registration.MaxDelayMS = 1
	cfg.Tasks.VerifyDelayMS = 1
	logger = config.NullLogger()
	formatter = output.NewFormatter(output.FormatJSON, io.Discard)
	cmdCtx = NewCommandContext(cfg, logger, formatter)

	connectAddress, connectInitData, connectUsername = "", "", ""
	connectFirstName, connectStartParam = "", ""
	connectUserID = 0
	referralQR, pendingClear = false, false
	configForce, countdownOnce = false, false

	return srv
}

// newTestCmd returns a command whose stdout is captured and whose stdin is in.
func newTestCmd(in string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(in))
	cmd.SetContext(context.Background())
	return cmd, &buf
}

// connectTestWallet runs connect for the default test identity.
func connectTestWallet(t *testing.T) StatusResult {
	t.Helper()
	connectAddress = testAddress
	connectUserID = testUserID
	connectUsername = testUsername

	cmd, buf := newTestCmd("")
	require.NoError(t, runConnect(cmd, nil))

	var res StatusResult
	decodeJSON(t, buf, &res)
	return res
}

func decodeJSON(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(buf.Bytes(), v), buf.String())
}
