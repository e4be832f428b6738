package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/metrics"
	"github.com/memeindex/memeindex/internal/output"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

func TestConnect_RegistersNewWallet(t *testing.T) {
	srv := setupTestEnv(t)

	res := connectTestWallet(t)
	assert.Equal(t, "registered", res.Phase)
	assert.Equal(t, testAddress, res.Address)
	assert.True(t, res.Registered)
	assert.Equal(t, testUserID, res.UserID)
	assert.Equal(t, testUsername, res.Username)

	assert.True(t, srv.Store().IsRegistered(testAddress))
	assert.True(t, srv.Store().IsRegistered("1001"))

	launch, ok, err := cmdCtx.Launch.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testUserID, launch.Identity.ID)
}

func TestConnect_AlreadyRegistered(t *testing.T) {
	srv := setupTestEnv(t)

	connectTestWallet(t)
	res := connectTestWallet(t)

	assert.Equal(t, "registered", res.Phase)
	assert.Equal(t, 1, srv.Store().Users())
}

func TestConnect_StartParamSentOnce(t *testing.T) {
	srv := setupTestEnv(t)

	// The referrer registers first so the code is known.
	connectAddress = "EQref...999"
	connectUserID = 2002
	connectUsername = "bob"
	cmd, _ := newTestCmd("")
	require.NoError(t, runConnect(cmd, nil))
	bob, invited, err := srv.Store().User("EQref...999")
	require.NoError(t, err)
	assert.Zero(t, invited)
	code := bob.ReferralCode

	connectAddress = testAddress
	connectUserID = testUserID
	connectUsername = testUsername
	connectStartParam = code
	cmd, buf := newTestCmd("")
	require.NoError(t, runConnect(cmd, nil))

	var res StatusResult
	decodeJSON(t, buf, &res)
	assert.True(t, res.Registered)

	_, invited, err = srv.Store().User("EQref...999")
	require.NoError(t, err)
	assert.Equal(t, 1, invited)

	pending, err := cmdCtx.Pending().Load()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConnect_DropsForeignSession(t *testing.T) {
	srv := setupTestEnv(t)

	connectAddress = "EQref...999"
	connectUserID = 2002
	connectUsername = "bob"
	cmd, _ := newTestCmd("")
	require.NoError(t, runConnect(cmd, nil))

	before := metrics.Global.Snapshot().RegistrationAttempts
	res := connectTestWallet(t)
	assert.Equal(t, testAddress, res.Address)
	assert.True(t, res.Registered)
	assert.Equal(t, int64(1), metrics.Global.Snapshot().RegistrationAttempts-before,
		"the stored session for another wallet is not registered")

	user, _, err := srv.Store().User(testAddress)
	require.NoError(t, err)
	assert.Equal(t, testUserID, user.UserID)
	assert.Equal(t, 2, srv.Store().Users())

	addr, err := cmdCtx.SessionAddress()
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr.String())
}

func TestConnect_StartParamNotStored(t *testing.T) {
	setupTestEnv(t)

	connectStartParam = "3E528A00"
	connectTestWallet(t)

	launch, ok, err := cmdCtx.Launch.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, launch.StartParam)

	pending, err := cmdCtx.Pending().Load()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A later connect reuses the stored identity without the code.
	connectStartParam = ""
	connectUserID = 0
	connectUsername = ""
	cmd, _ := newTestCmd("")
	require.NoError(t, runConnect(cmd, nil))

	pending, err = cmdCtx.Pending().Load()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConnect_ReadsAddressFromStdin(t *testing.T) {
	setupTestEnv(t)
	connectUserID = testUserID
	connectUsername = testUsername

	cmd, buf := newTestCmd(testAddress + "\n")
	require.NoError(t, runConnect(cmd, nil))

	var res StatusResult
	decodeJSON(t, buf, &res)
	assert.Equal(t, testAddress, res.Address)
}

func TestConnect_DismissedModal(t *testing.T) {
	setupTestEnv(t)
	connectUserID = testUserID
	connectUsername = testUsername

	cmd, _ := newTestCmd("\n")
	err := runConnect(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
}

func TestConnect_MissingIdentity(t *testing.T) {
	setupTestEnv(t)
	connectAddress = testAddress

	cmd, _ := newTestCmd("")
	err := runConnect(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrMissingIdentity)
}

func TestConnect_InvalidAddress(t *testing.T) {
	setupTestEnv(t)
	connectAddress = "EQ abc"
	connectUserID = testUserID
	connectUsername = testUsername

	cmd, _ := newTestCmd("")
	err := runConnect(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidAddress)
}

func TestStatus(t *testing.T) {
	setupTestEnv(t)

	cmd, buf := newTestCmd("")
	require.NoError(t, runStatus(cmd, nil))
	var before StatusResult
	decodeJSON(t, buf, &before)
	assert.Equal(t, "disconnected", before.Phase)
	assert.False(t, before.Registered)

	connectTestWallet(t)

	cmd, buf = newTestCmd("")
	require.NoError(t, runStatus(cmd, nil))
	var after StatusResult
	decodeJSON(t, buf, &after)
	assert.Equal(t, "registered", after.Phase)
	assert.Equal(t, testAddress, after.Address)
	assert.Equal(t, testUserID, after.UserID)
}

func TestStatus_LookupByAddress(t *testing.T) {
	setupTestEnv(t)
	connectTestWallet(t)
	cfg.Registration.LookupKey = config.LookupByAddress

	cmd, buf := newTestCmd("")
	require.NoError(t, runStatus(cmd, nil))
	var res StatusResult
	decodeJSON(t, buf, &res)
	assert.True(t, res.Registered)
}

func TestStatus_MissingIdentity(t *testing.T) {
	setupTestEnv(t)
	connectTestWallet(t)
	cmdCtx.Launch = NewFileLaunchStore(filepath.Join(t.TempDir(), "launch.json"))

	cmd, _ := newTestCmd("")
	err := runStatus(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrMissingIdentity)
}

func TestDisconnect(t *testing.T) {
	setupTestEnv(t)
	connectTestWallet(t)

	cmd, buf := newTestCmd("")
	require.NoError(t, runDisconnect(cmd, nil))
	assert.Contains(t, buf.String(), "Wallet disconnected")

	_, err := cmdCtx.SessionAddress()
	require.ErrorIs(t, err, apperr.ErrNotConnected)

	cmd, buf = newTestCmd("")
	require.NoError(t, runStatus(cmd, nil))
	var res StatusResult
	decodeJSON(t, buf, &res)
	assert.Equal(t, "disconnected", res.Phase)
	assert.Equal(t, testUserID, res.UserID)
}

func TestRenderStatus_Text(t *testing.T) {
	t.Cleanup(saveGlobals(t))
	cfg = config.Defaults()
	cfg.Output.Color = output.ColorAlways
	formatter = output.NewFormatter(output.FormatText, &bytes.Buffer{})

	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, StatusResult{
		Phase:      "registered",
		Address:    testAddress,
		Registered: true,
		UserID:     testUserID,
		Username:   testUsername,
	}))

	got := buf.String()
	assert.Contains(t, got, "Status:     \x1b[32mregistered\x1b[0m\n")
	assert.Contains(t, got, "User:       alice (1001)\n")
	assert.Contains(t, got, "Registered: true\n")
}

func TestPhaseStyle(t *testing.T) {
	assert.Equal(t, output.StyleGreen, phaseStyle("registered"))
	assert.Equal(t, output.StyleRed, phaseStyle("failed"))
	assert.Equal(t, output.StyleYellow, phaseStyle("connecting"))
}
