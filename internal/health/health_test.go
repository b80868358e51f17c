// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name   string
	result CheckResult
}

func (c *stubChecker) Name() string                      { return c.name }
func (c *stubChecker) Check(context.Context) CheckResult { return c.result }

func TestHealthNoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestHealthVerboseAggregation(t *testing.T) {
	m := NewManager("v1.0.0")
	m.Register(&stubChecker{name: "a", result: CheckResult{Status: StatusHealthy}})
	m.Register(&stubChecker{name: "b", result: CheckResult{Status: StatusDegraded, Message: "slow"}})

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.True(t, resp.Ready)
	assert.Len(t, resp.Checks, 2)
}

func TestReadyUnhealthyComponent(t *testing.T) {
	m := NewManager("v1.0.0")
	m.Register(&stubChecker{name: "store", result: CheckResult{Status: StatusUnhealthy, Error: "down"}})

	resp := m.Ready(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.False(t, resp.Ready)
}

func TestServeHealthAlways200(t *testing.T) {
	m := NewManager("v1.0.0")
	m.Register(&stubChecker{name: "store", result: CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady503WhenNotReady(t *testing.T) {
	m := NewManager("v1.0.0")
	m.Register(&stubChecker{name: "store", result: CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ok := NewManager("v1.0.0")
	rec = httptest.NewRecorder()
	ok.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()

	res := NewDirChecker("output", dir).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	res = NewDirChecker("output", filepath.Join(dir, "missing")).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	res = NewDirChecker("output", file).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)

	res = NewDirChecker("output", "").Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestStoreChecker(t *testing.T) {
	res := NewStoreChecker(stubPinger{}).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	res = NewStoreChecker(stubPinger{err: errors.New("locked")}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "locked", res.Error)
}
