package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryWindowLimiter_AllowsUpToMax(t *testing.T) {
	limiter := NewMemoryWindowLimiter()
	defer limiter.Stop()

	principal := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, principal, "prompt", 3, 60)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed within quota", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, principal, "prompt", 3, 60)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("request over quota should be rejected")
	}
}

func TestMemoryWindowLimiter_SeparatesByEndpoint(t *testing.T) {
	limiter := NewMemoryWindowLimiter()
	defer limiter.Stop()

	principal := uuid.New()
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, principal, "prompt", 1, 60); !allowed {
		t.Fatal("first prompt request should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, principal, "prompt", 1, 60); allowed {
		t.Fatal("second prompt request should exceed quota")
	}
	if allowed, _ := limiter.Allow(ctx, principal, "rebuild", 1, 60); !allowed {
		t.Fatal("rebuild quota is independent of prompt quota")
	}
}

func TestMemoryWindowLimiter_SeparatesByPrincipal(t *testing.T) {
	limiter := NewMemoryWindowLimiter()
	defer limiter.Stop()

	alice, bob := uuid.New(), uuid.New()
	ctx := context.Background()

	if allowed, _ := limiter.Allow(ctx, alice, "prompt", 1, 60); !allowed {
		t.Fatal("alice's first request should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, bob, "prompt", 1, 60); !allowed {
		t.Fatal("bob has his own quota, independent of alice's")
	}
}

func TestMemoryWindowLimiter_InvalidWindow(t *testing.T) {
	limiter := NewMemoryWindowLimiter()
	defer limiter.Stop()

	if _, err := limiter.Allow(context.Background(), uuid.New(), "prompt", 10, 0); err == nil {
		t.Error("expected error for non-positive windowSeconds")
	}
}
