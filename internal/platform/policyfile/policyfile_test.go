package policyfile

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const basePolicy = `
site_code: brkl
qc_notes_min_length: 12
temperature_thresholds_c:
  core: -20
genealogy:
  max_depth: 8
traceability_cache_ttl: 90s
run_archive_retention: 720h
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestParseNormalizes(t *testing.T) {
	p, err := Parse([]byte(basePolicy))
	require.NoError(t, err)
	assert.Equal(t, "BRKL", p.SiteCode)
	assert.Equal(t, 12, p.QCNotesMinLength)
	assert.Equal(t, -20.0, p.TemperatureThresholdsC["CORE"])
	assert.Equal(t, 4.0, p.TemperatureThresholdsC["SURFACE"])
	assert.Equal(t, 8, p.Genealogy.MaxDepth)
	assert.Equal(t, 1, p.Genealogy.DefaultDepth)
	assert.Equal(t, 90*time.Second, p.TraceabilityCacheTTL)
	assert.Equal(t, 30*24*time.Hour, p.RunArchiveRetention)
}

func TestParseEmptyYieldsDefaults(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, compliance.DefaultPolicy().Normalize(), p)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "site_code: BRKL\nqc_notes: 3\n",
		"bad site":          "site_code: BR\n",
		"bad measure":       "temperature_thresholds_c:\n  oven: 200\n",
		"depth above limit": "genealogy:\n  default_depth: 12\n  max_depth: 5\n",
		"malformed":         "site_code: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestStoreDefaultsWithoutPath(t *testing.T) {
	s, err := New(logger.Nop(), "")
	require.NoError(t, err)
	assert.Equal(t, compliance.DefaultPolicy(), s.Current())
	require.NoError(t, s.Reload())
	require.NoError(t, s.Watch(context.Background()))
}

func TestStoreReloadKeepsPreviousOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, basePolicy)

	s, err := New(logger.Nop(), path)
	require.NoError(t, err)
	require.Equal(t, 12, s.Current().QCNotesMinLength)

	var changes atomic.Int32
	s.OnChange(func(compliance.Policy) { changes.Add(1) })

	writeFile(t, path, "site_code: 12\n")
	require.Error(t, s.Reload())
	assert.Equal(t, "BRKL", s.Current().SiteCode)
	assert.Equal(t, int32(0), changes.Load())

	writeFile(t, path, "site_code: WEST\nqc_notes_min_length: 20\n")
	require.NoError(t, s.Reload())
	assert.Equal(t, "WEST", s.Current().SiteCode)
	assert.Equal(t, 20, s.Current().QCNotesMinLength)
	assert.Equal(t, int32(1), changes.Load())
}

func TestNewFailsOnMissingFile(t *testing.T) {
	_, err := New(logger.Nop(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, basePolicy)

	s, err := New(logger.Nop(), path)
	require.NoError(t, err)
	s.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	writeFile(t, path, "site_code: EAST\n")
	require.Eventually(t, func() bool {
		return s.Current().SiteCode == "EAST"
	}, 3*time.Second, 20*time.Millisecond)
}
