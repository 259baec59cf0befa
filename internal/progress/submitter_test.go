package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSubmitter_PostsAutoSubmit(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotForm   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm.Get("auto_submit")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL+"/", time.Second)
	s.Client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	status, err := s.Submit(context.Background(), "/p/abc/game/Decide/3/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, status)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/p/abc/game/Decide/3/", gotPath)
	assert.Equal(t, "True", gotForm)
}

func TestHTTPSubmitter_ReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	status, err := NewHTTPSubmitter(srv.URL, time.Second).Submit(context.Background(), "/p/abc/game/Decide/1/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestHTTPSubmitter_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewHTTPSubmitter(srv.URL, time.Second).Submit(context.Background(), "/p/abc/game/Decide/1/")
	assert.Error(t, err)
}
