package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gogithub "github.com/google/go-github/v29/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPRLink = "https://github.com/railyard-run/railyard/pull/42"

// newTestClient points a Client at an httptest server instead of the real
// GitHub API, following go-github's own BaseURL-override testing pattern.
func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)

	gh := gogithub.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return &Client{gh: gh}, server
}

func TestParsePRLink_OK(t *testing.T) {
	owner, repo, number, err := parsePRLink(testPRLink)
	require.NoError(t, err)
	assert.Equal(t, "railyard-run", owner)
	assert.Equal(t, "railyard", repo)
	assert.Equal(t, 42, number)
}

func TestParsePRLink_RejectsNonGitHubLink(t *testing.T) {
	_, _, _, err := parsePRLink("https://gitlab.com/railyard-run/railyard/-/merge_requests/42")
	require.Error(t, err)
}

func TestListComments_OK(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/railyard-run/railyard/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode([]*gogithub.IssueComment{
			{ID: gogithub.Int64(1), Body: gogithub.String("###abcd1234### in_progress")},
		})
	})
	client, server := newTestClient(t, mux)
	defer server.Close()

	comments, err := client.ListComments(context.Background(), testPRLink)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(1), comments[0].ID)
	assert.Contains(t, comments[0].Body, "abcd1234")
}

func TestListComments_RejectsBadLink(t *testing.T) {
	client, server := newTestClient(t, http.NewServeMux())
	defer server.Close()

	_, err := client.ListComments(context.Background(), "not-a-pr-link")
	require.Error(t, err)
}

func TestCreateComment_OK(t *testing.T) {
	var gotBody struct {
		Body string `json:"body"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/railyard-run/railyard/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&gogithub.IssueComment{ID: gogithub.Int64(2), Body: gogithub.String(gotBody.Body)})
	})
	client, server := newTestClient(t, mux)
	defer server.Close()

	err := client.CreateComment(context.Background(), testPRLink, "###abcd1234### no_orders")
	require.NoError(t, err)
	assert.Equal(t, "###abcd1234### no_orders", gotBody.Body)
}

func TestUpdateComment_OK(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/railyard-run/railyard/issues/comments/99", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		_ = json.NewEncoder(w).Encode(&gogithub.IssueComment{ID: gogithub.Int64(99), Body: gogithub.String("updated")})
	})
	client, server := newTestClient(t, mux)
	defer server.Close()

	err := client.UpdateComment(context.Background(), testPRLink, 99, "###abcd1234### finalized")
	require.NoError(t, err)
}

func TestUpdateComment_SurfacesTransportErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/railyard-run/railyard/issues/comments/99", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	})
	client, server := newTestClient(t, mux)
	defer server.Close()

	err := client.UpdateComment(context.Background(), testPRLink, 99, "x")
	require.Error(t, err)
}
