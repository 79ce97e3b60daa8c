package workmgmt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
)

func TestClient_List(t *testing.T) {
	var gotKey, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, gotPath, gotQuery = r.Header.Get("x-api-key"), r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"g-9","title":"Grow reach"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key-1", 600)
	data, err := c.List(context.Background(), Goals, ListParams{Limit: 5, Skip: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var goals []Goal
	if err := json.Unmarshal(data, &goals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]Goal{{ID: "g-9", Title: "Grow reach"}}, goals); diff != "" {
		t.Errorf("goals mismatch (-want +got):\n%s", diff)
	}
	if gotKey != "key-1" || gotPath != "/goal/getGoals" || gotQuery != "limit=5&skip=10" {
		t.Errorf("request = key %q path %q query %q", gotKey, gotPath, gotQuery)
	}
}

func TestClient_ListErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantAuth bool
	}{
		{name: "forbidden", status: http.StatusForbidden, wantAuth: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantAuth: true},
		{name: "server error", status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"message":"nope"}`, tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "key-1", 600).List(context.Background(), Tasks, ListParams{})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrUnauthorized); got != tt.wantAuth {
				t.Errorf("errors.Is(ErrUnauthorized) = %v, want %v (%v)", got, tt.wantAuth, err)
			}
		})
	}

	if _, err := NewClient("http://unused", "", 60).List(context.Background(), Tasks, ListParams{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("keyless client error = %v", err)
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := gin.New()
	r.GET("/api/workmgmt/:resource", Handler(NewClient(srv.URL, "key-1", 600), nil))

	tests := []struct {
		path       string
		wantStatus int
		wantUsers  int
	}{
		{path: "/api/workmgmt/users", wantStatus: http.StatusOK, wantUsers: 3},
		{path: "/api/workmgmt/payroll", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tt.path, w.Code, tt.wantStatus)
		}
		if tt.wantStatus != http.StatusOK {
			continue
		}
		var body struct {
			Data     []User `json:"data"`
			Fallback bool   `json:"fallback"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !body.Fallback || len(body.Data) != tt.wantUsers {
			t.Errorf("%s: fallback=%v users=%d", tt.path, body.Fallback, len(body.Data))
		}
	}
}
