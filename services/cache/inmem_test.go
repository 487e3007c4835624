package cachesvc

import (
	"context"
	"testing"

	"github.com/trezcool/ngazi/core"
)

func TestInMemService(t *testing.T) {
	svc := NewInMemService()
	ctx := context.Background()

	entries := []core.LeaderboardEntry{
		{OwnerID: "owner1", Level: 5, Experience: 10},
		{OwnerID: "owner2", Level: 3, Experience: 40},
		{OwnerID: "owner3", Level: 3, Experience: 5},
	}
	if err := svc.WarmLeaderboard(ctx, "class-7a", entries); err != nil {
		t.Fatalf("WarmLeaderboard() failed: %v", err)
	}

	got, err := svc.GetLeaderboard(ctx, "class-7a", 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() failed: %v", err)
	}
	if len(got) != 3 || got[0].OwnerID != "owner1" {
		t.Errorf("GetLeaderboard() = %v, want warmed entries in order", got)
	}

	// limit truncates
	if got, err = svc.GetLeaderboard(ctx, "class-7a", 2); err != nil {
		t.Fatalf("GetLeaderboard() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(got) = %v, want 2", len(got))
	}

	// scopes are isolated; "" is the global board
	if got, err = svc.GetLeaderboard(ctx, "", 10); err != nil {
		t.Fatalf("GetLeaderboard() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("global board = %v, want empty", got)
	}

	// re-warming replaces the board wholesale
	if err = svc.WarmLeaderboard(ctx, "class-7a", entries[:1]); err != nil {
		t.Fatalf("WarmLeaderboard() failed: %v", err)
	}
	if got, err = svc.GetLeaderboard(ctx, "class-7a", 10); err != nil {
		t.Fatalf("GetLeaderboard() failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(got) = %v after re-warm, want 1", len(got))
	}
}
