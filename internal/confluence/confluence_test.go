package confluence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audio-retro/internal/publish"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(Config{
		BaseURL:      srv.URL,
		Email:        "ops@example.com",
		APIToken:     "tok",
		SpaceKey:     "MKT",
		ParentPageID: "100",
	})
	c.SetHTTPClient(srv.Client())
	return c
}

func TestPageExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wiki/rest/api/content/search", r.URL.Path)
		assert.Equal(t, `ancestor=100 and title="Audio Retro - x" and type=page`, r.URL.Query().Get("cql"))
		assert.Equal(t, "current", r.URL.Query().Get("status"))
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("ops@example.com:tok"))
		assert.Equal(t, want, r.Header.Get("Authorization"))
		w.Write([]byte(`{"results":[{"id":"1","title":"Audio Retro - x"}]}`))
	}))
	defer srv.Close()

	exists, err := newTestClient(srv).PageExists(context.Background(), "Audio Retro - x")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreatePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wiki/rest/api/content", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req createRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "page", req.Type)
		assert.Equal(t, "MKT", req.Space["key"])
		assert.Equal(t, "100", req.Ancestors[0]["id"])
		assert.Equal(t, "storage", req.Body.Storage.Representation)
		assert.Equal(t, "<p>hi</p>", req.Body.Storage.Value)

		w.Write([]byte(`{"id":"42","_links":{"webui":"/spaces/MKT/pages/42"}}`))
	}))
	defer srv.Close()

	url, err := newTestClient(srv).CreatePage(context.Background(), "t", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/wiki/spaces/MKT/pages/42", url)
}

func TestCreatePageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"space does not exist"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreatePage(context.Background(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestCreatePageTitleCollision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"statusCode":400,"message":"A page with this title already exists: A page already exists with the same TITLE in this space"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreatePage(context.Background(), "t", "b")
	assert.ErrorIs(t, err, ErrPageExists)
	assert.ErrorIs(t, err, publish.ErrSkipped)
}

func TestCreatePageIsNotRetried(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	// default transport, so the production retry wiring is in play
	c := NewClient(Config{BaseURL: srv.URL, Email: "e", APIToken: "t", SpaceKey: "MKT", ParentPageID: "100"})
	_, err := c.CreatePage(context.Background(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 504")
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

type fakeWiki struct {
	exists  bool
	title   string
	body    string
	created int
}

func (f *fakeWiki) PageExists(_ context.Context, title string) (bool, error) {
	f.title = title
	return f.exists, nil
}

func (f *fakeWiki) CreatePage(_ context.Context, title, body string) (string, error) {
	f.created++
	f.body = body
	return "https://wiki/" + title, nil
}

func TestSinkPublish(t *testing.T) {
	wiki := &fakeWiki{}
	sink, err := NewSink(wiki, "Audio Retro", "")
	require.NoError(t, err)

	doc := publish.Document{
		Title:   "combined_csv_data_2025-02-01_10-00-00",
		Body:    "# Total\n<b>&</b>",
		Created: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	loc, err := sink.Publish(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "https://wiki/Audio Retro - 2025-02-01 10:00:00", loc)
	assert.Equal(t, "<p>Generated 2025-02-01 10:00:00 UTC</p>\n<pre># Total\n&lt;b&gt;&amp;&lt;/b&gt;</pre>", wiki.body)
}

func TestSinkSkipsExistingPage(t *testing.T) {
	wiki := &fakeWiki{exists: true}
	sink, err := NewSink(wiki, "Audio Retro", "")
	require.NoError(t, err)

	_, err = sink.Publish(context.Background(), publish.Document{Created: time.Now()})
	assert.ErrorIs(t, err, ErrPageExists)
	assert.True(t, errors.Is(err, publish.ErrSkipped))
	assert.Zero(t, wiki.created)
}

func TestSinkCustomTemplate(t *testing.T) {
	wiki := &fakeWiki{}
	sink, err := NewSink(wiki, "Retro", "<h1>{{ title }}</h1>{{ name }}")
	require.NoError(t, err)

	_, err = sink.Publish(context.Background(), publish.Document{Title: "doc", Created: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Retro - 2025-01-01 00:00:00</h1>doc", wiki.body)

	_, err = NewSink(wiki, "Retro", "{% if x %}unterminated")
	assert.Error(t, err)
}
