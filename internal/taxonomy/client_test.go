package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const dictURI = "https://identifier.example/uri/bac/0.1"

func TestPull_SinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Dictionary/v1/Classes", r.URL.Path)
		assert.Equal(t, dictURI, r.URL.Query().Get("uri"))
		assert.Equal(t, "false", r.URL.Query().Get("useNestedClasses"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))

		json.NewEncoder(w).Encode(classesPage{
			Classes: []Class{
				{Code: "PU", Name: "Pump"},
				{Code: "VLV", Name: "Valve"},
			},
			ClassesCount:      2,
			ClassesTotalCount: 2,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), discardLogger())
	classes, err := c.Pull(context.Background(), dictURI)
	require.NoError(t, err)

	require.Len(t, classes, 2)
	assert.Equal(t, "Pump", classes[0].Name)
	assert.Equal(t, "VLV", classes[1].Code)
}

func TestPull_WalksPages(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		page := classesPage{ClassesTotalCount: 3}
		if offset == "0" {
			page.Classes = []Class{{Code: "A", Name: "Alpha"}, {Code: "B", Name: "Beta"}}
			page.ClassesCount = 2
		} else {
			page.Classes = []Class{{Code: "C", Name: "Gamma"}}
			page.ClassesCount = 1
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), discardLogger())
	classes, err := c.Pull(context.Background(), dictURI)
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "2"}, offsets)
	require.Len(t, classes, 3)
	assert.Equal(t, "C", classes[2].Code)
}

func TestPull_RetriesOnRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(classesPage{
			Classes:           []Class{{Code: "PU", Name: "Pump"}},
			ClassesCount:      1,
			ClassesTotalCount: 1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), discardLogger())
	classes, err := c.Pull(context.Background(), dictURI)
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	require.Len(t, classes, 1)
}

func TestPull_RateLimitRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), discardLogger())
	_, err := c.Pull(context.Background(), dictURI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestPull_SkipsClassesWithoutCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(classesPage{
			Classes: []Class{
				{Code: "", Name: "Nameless", URI: "https://dict.example/x"},
				{Code: "PU", Name: "Pump"},
			},
			ClassesCount:      2,
			ClassesTotalCount: 2,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), discardLogger())
	classes, err := c.Pull(context.Background(), dictURI)
	require.NoError(t, err)

	require.Len(t, classes, 1)
	assert.Equal(t, "PU", classes[0].Code)
}

func TestPull_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), discardLogger())
	_, err := c.Pull(context.Background(), dictURI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taxonomy api returned 500")
}
