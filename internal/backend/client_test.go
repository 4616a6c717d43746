package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/backend/backendtest"
)

func newFake(t *testing.T) (*backendtest.Backend, *backend.Client) {
	t.Helper()
	fake := backendtest.New()
	srv := fake.NewServer()
	t.Cleanup(srv.Close)

	client, err := backend.New(srv.URL, backend.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return fake, client
}

func TestNew_RejectsBadURL(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "ftp://example.com", "http://", "://bad"} {
		_, err := backend.New(raw, backend.Options{})
		assert.Error(t, err, "New(%q)", raw)
	}
}

func TestClient_Corpus(t *testing.T) {
	t.Parallel()
	fake, client := newFake(t)
	fake.AddCorpus(backend.Corpus{ID: 3, Name: "buckeye", InputFormat: "B", Imported: true})

	c, err := client.Corpus(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "buckeye", c.Name)
	assert.True(t, c.Imported)
	assert.False(t, c.Busy)
}

func TestClient_CorpusNotFound(t *testing.T) {
	t.Parallel()
	_, client := newFake(t)

	_, err := client.Corpus(context.Background(), "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not found.", apiErr.Message)
}

func TestClient_TokenAuth(t *testing.T) {
	t.Parallel()
	fake := backendtest.New()
	fake.Token = "s3cret"
	srv := fake.NewServer()
	defer srv.Close()

	anon, err := backend.New(srv.URL, backend.Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, anon.AuthenticationStatus(context.Background()), backend.ErrUnauthenticated)

	authed, err := backend.New(srv.URL, backend.Options{Token: "s3cret"})
	require.NoError(t, err)
	assert.NoError(t, authed.AuthenticationStatus(context.Background()))
}

func TestClient_CurrentUserPermissions(t *testing.T) {
	t.Parallel()
	fake, client := newFake(t)
	fake.SetUser(backend.User{
		ID:       7,
		Username: "linguist",
		CorpusPermissions: map[string]backend.Permission{
			"1": {CanQuery: true, CanEnrich: false},
		},
	})

	u, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "linguist", u.Username)

	perm, ok := u.Permission("1")
	require.True(t, ok)
	assert.True(t, perm.CanQuery)
	assert.False(t, perm.CanEnrich)

	_, ok = u.Permission("2")
	assert.False(t, ok)
}

func TestUser_SuperuserHasAllPermissions(t *testing.T) {
	t.Parallel()
	perm, ok := backend.User{IsSuperuser: true}.Permission("anything")
	assert.True(t, ok)
	assert.True(t, perm.CanQuery)
	assert.True(t, perm.CanEnrich)
}

func TestClient_HierarchyAndQueries(t *testing.T) {
	t.Parallel()
	fake, client := newFake(t)
	fake.AddCorpus(backend.Corpus{ID: 1, Name: "timit", Imported: true})
	fake.SetQueries("word", []backend.QuerySummary{{ID: 11, Name: "all words", AnnotationType: "word"}})

	h, err := client.Hierarchy(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"word", "phone"}, h.AnnotationTypes)
	assert.Equal(t, backend.Property{Name: "label", Type: "str"}, h.TypeProperties["word"][0])

	qs, err := client.TypeQueries(context.Background(), "1", "word")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, 11, qs[0].ID)

	qs, err = client.TypeQueries(context.Background(), "1", "phone")
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestClient_ImportCorpusSendsCSRF(t *testing.T) {
	t.Parallel()
	fake, client := newFake(t)
	fake.AddCorpus(backend.Corpus{ID: 5, Name: "new"})

	// the first GET collects the csrftoken cookie
	_, err := client.Corpus(context.Background(), "5")
	require.NoError(t, err)

	taskID, err := client.ImportCorpus(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)

	ts, err := client.TaskStatus(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "STARTED", ts.Status)
	assert.False(t, ts.Failed())

	// a second import conflicts while the corpus is busy
	_, err = client.ImportCorpus(context.Background(), "5")
	assert.ErrorIs(t, err, backend.ErrConflict)
}

func TestClient_ImportWithoutCSRFCookieIsRejected(t *testing.T) {
	t.Parallel()
	fake := backendtest.New()
	fake.AddCorpus(backend.Corpus{ID: 5})

	// strip the cookie so the client never learns the token
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := httptest.NewRecorder()
		fake.Handler().ServeHTTP(rec, r)
		for k, v := range rec.Header() {
			if k != "Set-Cookie" {
				w.Header()[k] = v
			}
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	}))
	defer srv.Close()

	client, err := backend.New(srv.URL, backend.Options{})
	require.NoError(t, err)

	_, err = client.ImportCorpus(context.Background(), "5")
	assert.ErrorIs(t, err, backend.ErrUnauthenticated)
}

func TestClient_Enrich(t *testing.T) {
	t.Parallel()
	fake, client := newFake(t)
	fake.AddCorpus(backend.Corpus{ID: 1, Name: "timit", Imported: true})
	fake.AddCorpus(backend.Corpus{ID: 2, Name: "buckeye"})

	// collect the csrftoken cookie
	_, err := client.Corpus(context.Background(), "1")
	require.NoError(t, err)

	payload := map[string]any{"enrichment_type": "syllables"}
	require.NoError(t, client.Enrich(context.Background(), "1", payload))

	got := fake.Enrichments("1")
	require.Len(t, got, 1)
	assert.Equal(t, "syllables", got[0]["enrichment_type"])

	c, err := client.Corpus(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, c.Busy)

	// busy corpus conflicts, unimported corpus is a bad request
	assert.ErrorIs(t, client.Enrich(context.Background(), "1", payload), backend.ErrConflict)
	err = client.Enrich(context.Background(), "2", nil)
	assert.ErrorIs(t, err, backend.ErrBadRequest)
	assert.ErrorContains(t, err, "has not been imported yet")
	assert.ErrorIs(t, client.Enrich(context.Background(), "9", nil), backend.ErrNotFound)
}

func TestClient_LongErrorMessageKeepsRunes(t *testing.T) {
	t.Parallel()
	// one ASCII byte then two-byte runes, so byte 512 falls inside a rune
	msg := "a" + strings.Repeat("é", 400)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(msg)
	}))
	defer srv.Close()

	client, err := backend.New(srv.URL, backend.Options{})
	require.NoError(t, err)

	_, err = client.Corpus(context.Background(), "1")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, utf8.ValidString(apiErr.Message), "message is not valid UTF-8")
	assert.True(t, strings.HasSuffix(apiErr.Message, "..."))
	assert.LessOrEqual(t, len(apiErr.Message), 512+len("..."))
	assert.Equal(t, 511+len("..."), len(apiErr.Message))
}

func TestClient_ServerErrorMessage(t *testing.T) {
	t.Parallel()
	fake, client := newFake(t)
	fake.AddCorpus(backend.Corpus{ID: 1})
	fake.FailCorpus("1", 1)

	_, err := client.Corpus(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "database is restarting")

	// the fake only fails once
	_, err = client.Corpus(context.Background(), "1")
	assert.NoError(t, err)
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := backend.New(srv.URL, backend.Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Corpus(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error = %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_BodyLimit(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// a JSON string longer than the 1MB limit decodes as truncated
		_, _ = w.Write([]byte(`{"name":"` + strings.Repeat("a", 2<<20) + `"}`))
	}))
	defer srv.Close()

	client, err := backend.New(srv.URL, backend.Options{})
	require.NoError(t, err)

	_, err = client.Corpus(context.Background(), "1")
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestProperty_UnmarshalJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    backend.Property
		wantErr bool
	}{
		{name: "pair", input: `["label", "str"]`, want: backend.Property{Name: "label", Type: "str"}},
		{name: "name only", input: `["begin"]`, want: backend.Property{Name: "begin"}},
		{name: "bare string", input: `"end"`, want: backend.Property{Name: "end"}},
		{name: "non-string type", input: `["count", 3]`, want: backend.Property{Name: "count", Type: "3"}},
		{name: "empty array", input: `[]`, wantErr: true},
		{name: "object", input: `{"name": "x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p backend.Property
			err := json.Unmarshal([]byte(tt.input), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code   int
		target error
	}{
		{http.StatusNotFound, backend.ErrNotFound},
		{http.StatusUnauthorized, backend.ErrUnauthenticated},
		{http.StatusForbidden, backend.ErrUnauthenticated},
		{http.StatusConflict, backend.ErrConflict},
		{http.StatusBadRequest, backend.ErrBadRequest},
	}
	for _, tt := range tests {
		err := error(&backend.APIError{Method: "GET", Path: "/x", StatusCode: tt.code})
		assert.ErrorIs(t, err, tt.target, "status %d", tt.code)
	}
	assert.NotErrorIs(t, &backend.APIError{StatusCode: 500}, backend.ErrNotFound)
}
