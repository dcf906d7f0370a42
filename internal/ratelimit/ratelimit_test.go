package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucketExhaustion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := New(client, "compute", LimiterConfig{RPS: 1, Burst: 3})
	h := rl.Middleware(KeyByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var got []int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/compute", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		got = append(got, rr.Code)
	}

	allowed := 0
	for _, code := range got {
		if code == http.StatusOK {
			allowed++
		} else if code != http.StatusTooManyRequests {
			t.Fatalf("unexpected status %d", code)
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d requests within burst, want 3 (codes %v)", allowed, got)
	}
}

func TestBucketsAreIndependentPerKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := New(client, "compute", LimiterConfig{RPS: 1, Burst: 1})
	h := rl.Middleware(KeyByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/api/compute", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("first request from %s got %d, want 200", addr, rr.Code)
		}
	}
}
