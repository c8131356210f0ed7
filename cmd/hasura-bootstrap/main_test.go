package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunPrintsPlanWithoutMutating(t *testing.T) {
	var mutations int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "from-env", r.Header.Get("x-hasura-admin-secret"))
		var q struct {
			Type string `json:"type"`
		}
		json.NewDecoder(r.Body).Decode(&q)
		if q.Type != "export_metadata" {
			atomic.AddInt32(&mutations, 1)
		}
		w.Write([]byte(`{"resource_version":1,"metadata":{"version":3,"sources":[{"name":"default","tables":[{"table":{"schema":"public","name":"drugs"}}]}]}}`))
	}))
	defer srv.Close()

	manifest := filepath.Join(t.TempDir(), "hasura.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("tables: [drugs, drug_aliases]\n"), 0o600))
	t.Setenv("HASURA_ADMIN_SECRET", "from-env")

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--endpoint", srv.URL, "--manifest", manifest, "--dry-run", "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "would apply: track table public.drug_aliases")
	assert.Contains(t, out.String(), "skipped: track table public.drugs")
	assert.Zero(t, atomic.LoadInt32(&mutations))
}

func TestMissingManifestFails(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"--manifest", filepath.Join(t.TempDir(), "missing.yaml")})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
