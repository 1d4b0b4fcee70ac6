package redis

import (
	"context"
	"testing"
	"time"
)

func TestInflightIndex_ClaimReleaseOwnership(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	idx := NewInflightIndex(fr)

	ok, err := idx.Claim(ctx, "digest:1", "job-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := idx.Claim(ctx, "digest:1", "job-b", time.Minute); ok {
		t.Fatal("second claim must not win")
	}

	id, found, err := idx.Current(ctx, "digest:1")
	if err != nil || !found || id != "job-a" {
		t.Fatalf("current = %q %v %v", id, found, err)
	}

	// a stale worker must not drop someone else's marker
	if err := idx.Release(ctx, "digest:1", "job-b"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := idx.Current(ctx, "digest:1"); !found {
		t.Fatal("marker released by non-owner")
	}

	if err := idx.Release(ctx, "digest:1", "job-a"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := idx.Current(ctx, "digest:1"); found {
		t.Fatal("marker should be gone after owner release")
	}
}

func TestInflightIndex_Expires(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	idx := NewInflightIndex(fr)

	if _, err := idx.Claim(ctx, "graph:2", "job-a", time.Minute); err != nil {
		t.Fatal(err)
	}
	fr.advance(2 * time.Minute)
	if _, found, _ := idx.Current(ctx, "graph:2"); found {
		t.Error("marker should expire")
	}
}
