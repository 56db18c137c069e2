package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"terminals":[{"id":"term_1","name":"main","number":1,"pid":42,"isActive":true,"lifecycle":{"processState":"running"}}]}`)
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, srv, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "term_1")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "*")
}

func TestCreateBackground(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"terminal":{"id":"term_2","name":"logs","number":2}}`)
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, srv, "create", "--name", "logs", "--background")
	require.NoError(t, err)
	assert.Equal(t, "created term_2 (#2 logs)\n", out)
	assert.Contains(t, body, `"focus":false`)
}

func TestDeleteReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"terminal: not found"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := run(t, srv, "delete", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete nope: server returned 404")

	_, err = run(t, srv, "delete")
	assert.Error(t, err, "requires an id")
}

func TestRestoreWithReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"restoredCount":0,"skippedCount":2,"reason":"terminals already open"}`)
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, srv, "restore")
	require.NoError(t, err)
	assert.Equal(t, "nothing restored: terminals already open\n", out)
}
