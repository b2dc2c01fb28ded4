package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioprotocol-io/bioprotocol/internal/api/middleware"
	"github.com/bioprotocol-io/bioprotocol/internal/listener"
)

const articleJSON = `{
	"id": "12345",
	"status": "vor",
	"body": [
		{
			"type": "section",
			"id": "s4",
			"title": "Materials and Methods",
			"content": [
				{"type": "section", "id": "s4-1", "title": "Antibodies", "content": []},
				{"type": "section", "id": "s4-2", "title": "Plasmids", "content": []}
			]
		}
	]
}`

const partnerRows = `{"data": [
	{"ProtocolSequencingNumber": "s4-1", "ProtocolTitle": "Antibodies", "IsProtocol": true,
	 "ProtocolStatus": 0, "URI": "https://en.bio-protocol.org/rap.aspx?eid=24419&item=s4-1"},
	{"ProtocolSequencingNumber": "s4-2", "ProtocolTitle": "Plasmids", "IsProtocol": false,
	 "ProtocolStatus": 0, "URI": ""}
]}`

// remote fakes the eLife gateway and the partner API on one server.
type remote struct {
	mu   sync.Mutex
	sent []byte
}

func (r *remote) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch {
	case req.Method == http.MethodGet && req.URL.Path == "/articles/12345":
		_, _ = io.WriteString(w, articleJSON)
	case req.Method == http.MethodGet && req.URL.Path == "/articles/99999":
		_, _ = io.WriteString(w, `{"id": "99999", "status": "poa"}`)
	case req.Method == http.MethodPost && req.URL.Path == "/elife12345":
		body, _ := io.ReadAll(req.Body)

		r.mu.Lock()
		r.sent = body
		r.mu.Unlock()

		w.WriteHeader(http.StatusOK)
	case req.Method == http.MethodGet && req.URL.Path == "/elife12345":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, partnerRows)
	case req.Method == http.MethodGet && req.URL.Path == "/elife00042":
		_, _ = io.WriteString(w, `{"data": []}`)
	default:
		http.NotFound(w, req)
	}
}

func setupEnv(t *testing.T) *remote {
	t.Helper()

	fake := &remote{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	t.Setenv("DATABASE_URL", "")
	t.Setenv("BIOPROTOCOL_LOG_LEVEL", "error")
	t.Setenv("BIOPROTOCOL_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("BIOPROTOCOL_ELIFE_GATEWAY", server.URL)
	t.Setenv("BIOPROTOCOL_PARTNER_URL", server.URL)
	t.Setenv("BIOPROTOCOL_CLIENT_MAX_RETRIES", "0")
	t.Setenv("BIOPROTOCOL_KAFKA_BROKERS", "")

	return fake
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestReloadArticle(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "reload-article", "12345")
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"total": 1,
		"items": [{
			"sectionId": "s4-1",
			"title": "Antibodies",
			"status": false,
			"uri": "https://en.bio-protocol.org/rap.aspx?eid=24419&item=s4-1"
		}]
	}`, out)
}

func TestReloadArticleWithoutRows(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "reload-article", "42")
	require.NoError(t, err)
	assert.Equal(t, "article not found: 42\n", out)
}

func TestResendArticle(t *testing.T) {
	fake := setupEnv(t)

	out, err := execute(t, "resend-article", "12345")
	require.NoError(t, err)

	want := `{"data": [
		{"ProtocolSequencingNumber": "s4-1", "ProtocolTitle": "Antibodies"},
		{"ProtocolSequencingNumber": "s4-2", "ProtocolTitle": "Plasmids"}
	]}`

	assert.JSONEq(t, want, out)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.JSONEq(t, want, string(fake.sent))
}

func TestResendArticleSkipsPOA(t *testing.T) {
	fake := setupEnv(t)

	out, err := execute(t, "resend-article", "99999")
	require.NoError(t, err)
	assert.Equal(t, "article 99999 skipped: POA or empty\n", out)
	assert.Nil(t, fake.sent)
}

func TestArticleCommandsRejectInvalidIDs(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "reload non-numeric", args: []string{"reload-article", "abc"}},
		{name: "reload zero", args: []string{"reload-article", "0"}},
		{name: "resend fractional", args: []string{"resend-article", "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, errInvalidMsid)
		})
	}

	_, err := execute(t, "reload-article")
	assert.Error(t, err)
}

func TestListenRequiresBrokers(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "listen")
	assert.ErrorIs(t, err, listener.ErrNoBrokers)
}

func TestHashKey(t *testing.T) {
	t.Run("given key", func(t *testing.T) {
		out, err := execute(t, "hash-key", "--partner", "bio-protocol", "secret-partner-key")
		require.NoError(t, err)

		entry := strings.TrimPrefix(strings.TrimSpace(out), "entry: ")
		keys, err := middleware.ParsePartnerKeys([]string{entry})
		require.NoError(t, err)
		require.Len(t, keys, 1)

		assert.Equal(t, "bio-protocol", keys[0].Name)
		assert.True(t, middleware.CompareAPIKeyHash(keys[0].Hash, "secret-partner-key"))
	})

	t.Run("generated key", func(t *testing.T) {
		out, err := execute(t, "hash-key")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)

		key := strings.TrimSpace(strings.TrimPrefix(lines[0], "key:"))
		assert.True(t, strings.HasPrefix(key, middleware.APIKeyPrefix))

		keys, err := middleware.ParsePartnerKeys([]string{strings.TrimPrefix(lines[1], "entry: ")})
		require.NoError(t, err)

		verifier, err := middleware.NewKeyVerifier(keys)
		require.NoError(t, err)

		partner, ok := verifier.Verify(key)
		assert.True(t, ok)
		assert.Equal(t, "bio-protocol", partner)
	})
}

func TestParseMsid(t *testing.T) {
	msid, err := parseMsid("00042")
	require.NoError(t, err)
	assert.Equal(t, int64(42), msid)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
