package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/keshon/lavalink/internal/lavalink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = `{"loadType":"SEARCH_RESULT","tracks":[
	{"track":"QAAAone","info":{"identifier":"a","isSeekable":true,"author":"Rick Astley","length":212000,"isStream":false,"position":0,"title":"Never Gonna Give You Up","uri":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}},
	{"track":"QAAAtwo","info":{"identifier":"b","isSeekable":false,"author":"Lofi Girl","length":0,"isStream":true,"position":0,"title":"lofi hip hop radio","uri":"https://www.youtube.com/watch?v=jfKfPfyJRdk"}}
]}`

func fakeNode(t *testing.T) (host, port string, queries chan string) {
	t.Helper()
	queries = make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("identifier")
		queries <- q
		if q == "ytsearch:zzz" {
			_, _ = w.Write([]byte(`{"loadType":"NO_MATCHES","tracks":[]}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Hostname(), u.Port(), queries
}

func TestRunPrintsTracks(t *testing.T) {
	host, port, queries := fakeNode(t)
	var out, errOut bytes.Buffer

	err := run([]string{"-host", host, "-port", port, "never", "gonna"}, &out, &errOut)
	require.NoError(t, err)

	assert.Equal(t, "ytsearch:never gonna", <-queries)
	assert.Contains(t, out.String(), "SEARCH_RESULT, 2 track(s)")
	assert.Contains(t, out.String(), " 1. Rick Astley - Never Gonna Give You Up (3m32s)")
	assert.Contains(t, out.String(), " 2. Lofi Girl - lofi hip hop radio (live)")
}

func TestRunLimitAndJSON(t *testing.T) {
	host, port, _ := fakeNode(t)
	var out, errOut bytes.Buffer

	require.NoError(t, run([]string{"-host", host, "-port", port, "-n", "1", "-json", "https://youtu.be/dQw4w9WgXcQ"}, &out, &errOut))

	var tracks []lavalink.Track
	require.NoError(t, json.Unmarshal(out.Bytes(), &tracks))
	require.Len(t, tracks, 1)
	assert.Equal(t, "QAAAone", tracks[0].Track)
}

func TestRunNoMatches(t *testing.T) {
	host, port, _ := fakeNode(t)
	var out, errOut bytes.Buffer

	err := run([]string{"-host", host, "-port", port, "zzz"}, &out, &errOut)
	assert.ErrorIs(t, err, lavalink.ErrNoMatch)
}

func TestRunMissingQuery(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(nil, &out, &errOut)
	assert.ErrorContains(t, err, "missing query")
	assert.Contains(t, errOut.String(), "-host")
}
