package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hylla/fordela/internal/domain"
)

func TestGatewayRecommend(t *testing.T) {
	var gotPath string
	var gotReq recommendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"recommendations": []map[string]any{
				{"engineer_id": "e-2", "score": 0.91},
				{"engineer_id": "e-1", "score": 0.64},
			},
		})
	}))
	defer srv.Close()

	g := New(srv.URL)
	recs, err := g.Recommend(context.Background(), "t-1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if gotPath != "/recommendations" {
		t.Fatalf("request path = %q, want /recommendations", gotPath)
	}
	if gotReq.TaskID != "t-1" || gotReq.Limit != 5 {
		t.Fatalf("request body = %+v, want task t-1 limit 5", gotReq)
	}
	if len(recs) != 2 || recs[0].EngineerID != "e-2" || recs[0].Score != 0.91 {
		t.Fatalf("Recommend() = %+v, want two gateway rows", recs)
	}
}

func TestGatewayRecommendEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"recommendations": []any{}})
	}))
	defer srv.Close()

	recs, err := New(srv.URL).Recommend(context.Background(), "t-1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("Recommend() = %v, want empty non-nil slice", recs)
	}
}

func TestGatewayRecommendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Recommend(context.Background(), "t-1", 5)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("Recommend() error = %v, want ErrGatewayUnavailable", err)
	}
}

func TestGatewayRecommendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := New(srv.URL).Recommend(context.Background(), "t-1", 5)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("Recommend() error = %v, want ErrGatewayUnavailable", err)
	}
}

func TestGatewayRecommendTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	g := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := g.Recommend(context.Background(), "t-1", 5)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("Recommend() error = %v, want ErrGatewayUnavailable", err)
	}
}

func TestGatewayRecommendMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Recommend(context.Background(), "t-1", 5)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("Recommend() error = %v, want ErrGatewayUnavailable", err)
	}
}
