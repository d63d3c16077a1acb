package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/app"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "trace", "RAW-20260124-DUNA-0001")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestFlagsExportToEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("COMPLIANCE_POLICY_PATH", "")
	t.Setenv("LOG_MODE", "keep")
	t.Setenv("LOTLINE_LOG_MODE", "")
	t.Setenv("LOTLINE_POLICY", "/etc/lotline/policy.yaml")

	// The bad direction fails after the persistent pre-run has exported.
	_, err := execute(t, "--addr", ":9999", "trace", "RAW-20260124-DUNA-0001", "--direction", "bad")
	require.Error(t, err)

	assert.Equal(t, ":9999", os.Getenv("HTTP_ADDR"))
	assert.Equal(t, "/etc/lotline/policy.yaml", os.Getenv("COMPLIANCE_POLICY_PATH"))
	assert.Equal(t, "keep", os.Getenv("LOG_MODE"), "unset settings leave the variable alone")
}

func TestTraceArgumentValidation(t *testing.T) {
	_, err := execute(t, "trace")
	require.Error(t, err)

	_, err = execute(t, "trace", "RAW-20260124-DUNA-0001", "--direction", "sideways")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "trace", "RAW-20260124-DUNA-0001", "--depth", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", nil)))

	notFound := domainagg.NewKindError(domainagg.KindNotFound, "op", "lot missing", nil)
	assert.Equal(t, ExitFailure, GetExitCode(domainFailure("trace", notFound)))
	invalid := domainagg.NewKindError(domainagg.KindValidation, "op", "bad code", nil)
	assert.Equal(t, ExitCommandError, GetExitCode(domainFailure("trace", invalid)))
	assert.Equal(t, ExitCommandError, GetExitCode(domainFailure("trace", errors.New("io"))))
}

func TestStartupFailureIsCommandError(t *testing.T) {
	cmd := newRootCommand(func(context.Context) (*app.App, error) { return nil, errors.New("db down") })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"archive", "sweep"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "db down")
}

func TestEnvFileFillsUnsetVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lotline.env")
	require.NoError(t, os.WriteFile(path, []byte("LOTLINE_TEST_SITE=DUNA\nLOG_MODE=production\n"), 0o600))
	t.Setenv("LOTLINE_TEST_SITE", "")
	require.NoError(t, os.Unsetenv("LOTLINE_TEST_SITE"))
	t.Setenv("LOG_MODE", "test")

	_, err := execute(t, "--env-file", path, "trace", "RAW-20260124-DUNA-0001", "--direction", "bad")
	require.Error(t, err)
	assert.Equal(t, "DUNA", os.Getenv("LOTLINE_TEST_SITE"))
	assert.Equal(t, "test", os.Getenv("LOG_MODE"), "variables already set win over the file")

	_, err = execute(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "trace", "RAW-20260124-DUNA-0001")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
