package htmlindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/episode-downloader/internal/model"
)

const indexPage = `<html><body>
<table>
  <tr><td><a href="/watch/3">Episode 3</a></td><td>Canon</td></tr>
  <tr><td><a href="/watch/1#top">Episode 1</a></td><td>Canon</td></tr>
  <tr><td><a href="watch/2">Episode 2</a></td><td>Anime Filler</td></tr>
  <tr><td><a href="/watch/2-duplicate">Episode 2 (mirror)</a></td><td>Canon</td></tr>
  <tr><td><a href="/about">About</a></td><td></td></tr>
</table>
<ul><li><a href="/files/show-04.mp4" data-category="filler">Download</a></li></ul>
</body></html>`

func newServer(t *testing.T, pages map[string]string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSite_Discover(t *testing.T) {
	server := newServer(t, map[string]string{"/show/": indexPage})
	site := New(Options{})

	items, err := site.Discover(context.Background(), server.URL+"/show/")
	require.NoError(t, err)
	require.Len(t, items, 4)

	expected := []struct {
		ordinal  int
		source   string
		category model.Category
	}{
		{1, server.URL + "/watch/1", model.CategoryNormal},
		{2, server.URL + "/show/watch/2", model.CategoryFiller},
		{3, server.URL + "/watch/3", model.CategoryNormal},
		{4, server.URL + "/files/show-04.mp4", model.CategoryFiller},
	}
	for i, want := range expected {
		assert.Equal(t, want.ordinal, items[i].Ordinal)
		assert.Equal(t, want.source, items[i].SourceURL)
		assert.Equal(t, want.category, items[i].Category, "item %d", want.ordinal)
	}
	assert.Equal(t, "Episode 1", items[0].Name)
}

func TestSite_DiscoverHTTPError(t *testing.T) {
	server := newServer(t, nil)

	_, err := New(Options{}).Discover(context.Background(), server.URL+"/missing")
	serverErr := model.As[*model.ServerError](err)
	require.NotNil(t, serverErr, "got %v", err)
	assert.Equal(t, http.StatusNotFound, serverErr.StatusCode)
}

func TestSite_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		expected string
	}{
		{
			"video source wins",
			`<a href="/a.mp4">a</a><video src="/b.mp4"><source src="/c.mp4"></video>`,
			"/c.mp4",
		},
		{
			"video src",
			`<a download href="/a.bin">a</a><video src="/b.webm"></video>`,
			"/b.webm",
		},
		{
			"download link",
			`<a href="/x.mp4">x</a><a download href="/files/get?id=1">get</a>`,
			"/files/get?id=1",
		},
		{
			"media link",
			`<a href="/about">about</a><a href="media/ep.MKV">ep</a>`,
			"/page/media/ep.MKV",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := newServer(t, map[string]string{"/page/1": test.page})
			url, err := New(Options{}).Resolve(context.Background(), model.Item{Ordinal: 1, SourceURL: server.URL + "/page/1"})
			require.NoError(t, err)
			assert.Equal(t, server.URL+test.expected, url)
		})
	}
}

func TestSite_ResolveDirectMedia(t *testing.T) {
	url, err := New(Options{}).Resolve(context.Background(), model.Item{Ordinal: 4, SourceURL: "https://cdn.example.com/show-04.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/show-04.mp4", url)
}

func TestSite_ResolveFailures(t *testing.T) {
	server := newServer(t, map[string]string{"/empty": `<p>nothing here</p>`})
	site := New(Options{})

	for _, item := range []model.Item{
		{Ordinal: 1},
		{Ordinal: 2, SourceURL: server.URL + "/empty"},
		{Ordinal: 3, SourceURL: server.URL + "/gone"},
	} {
		_, err := site.Resolve(context.Background(), item)
		assert.True(t, errors.Is(err, model.ErrResolutionFailed), "item %d: got %v", item.Ordinal, err)
	}
}

func TestSite_SendsUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		fmt.Fprint(w, `<video src="/v.mp4"></video>`)
	}))
	defer server.Close()

	_, err := New(Options{UserAgent: "test-agent"}).Resolve(context.Background(), model.Item{Ordinal: 1, SourceURL: server.URL + "/p"})
	require.NoError(t, err)
	assert.Equal(t, "test-agent", <-agents)
}

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{"Episode 12", 12},
		{"Naruto Shippuden 2 Episode 7", 7},
		{"ep. 3", 3},
		{"EP#15", 15},
		{"S01E05", 5},
		{"show-04.mp4", 4},
		{"Part 1 of 3", 3},
		{"About", 0},
		{"", 0},
	}

	for _, test := range tests {
		if result := ParseOrdinal(test.text); result != test.expected {
			t.Errorf("ParseOrdinal(%q) = %d, expected %d", test.text, result, test.expected)
		}
	}
}

func TestIsMediaURL(t *testing.T) {
	tests := []struct {
		locator  string
		expected bool
	}{
		{"https://cdn/x.mp4", true},
		{"https://cdn/x.MP4?token=1", true},
		{"https://cdn/x.webm", true},
		{"https://cdn/watch/1", false},
		{"https://cdn/x.mp4.html", false},
		{"%zz", false},
	}

	for _, test := range tests {
		if result := IsMediaURL(test.locator); result != test.expected {
			t.Errorf("IsMediaURL(%q) = %v, expected %v", test.locator, result, test.expected)
		}
	}
}
