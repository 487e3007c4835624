package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	testutil "github.com/trezcool/ngazi/tests"
)

func Test_progressionApi_award(t *testing.T) {
	app := setup(t)

	tests := []httpTest{
		{
			name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"owner_id": "this field is required"}),
		},
		{
			name: "invalid scope", body: marchallObj(t, progression.ExperienceAward{OwnerID: "owner1", Scope: null.StringFrom("No Good!"), Delta: 10}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"scope": "only lowercase alphanumeric characters and hyphens are allowed"}),
		},
		{
			name: "negative delta", body: marchallObj(t, progression.ExperienceAward{OwnerID: "owner1", Delta: -5}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"delta": "delta must be 0 or greater"}),
		},
		{
			name: "award applied", body: marchallObj(t, progression.ExperienceAward{OwnerID: "owner1", Delta: 250}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/progression/awards"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)

			// record contents cannot be guessed up front; check the outcome fields
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var res progression.AwardResult
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if res.Record.Level != 2 || res.Record.Experience != 150 {
					t.Errorf("failed! level %v exp %v; want level 2 exp 150", res.Record.Level, res.Record.Experience)
				}
				if !res.LeveledUp || res.PreviousLevel != 1 {
					t.Errorf("failed! leveledUp %v previousLevel %v; want true 1", res.LeveledUp, res.PreviousLevel)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_progressionApi_records(t *testing.T) {
	app := setup(t)

	global := testutil.CreateRecord(t, app.recRepo, "owner1", null.String{}, 2, 150)
	scoped := testutil.CreateRecord(t, app.recRepo, "owner1", null.StringFrom("class-7a"), 1, 50)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "all records", path: "/v1/progression/records/owner1", wantData: marchallList(t, global, scoped)},
		{name: "unknown owner", path: "/v1/progression/records/ghost", wantData: empty},
		{name: "scoped record", path: "/v1/progression/records/owner1?scope=class-7a", wantData: marchallObj(t, scoped)},
		{name: "global record via empty scope", path: "/v1/progression/records/owner1?scope=", wantData: marchallObj(t, global)},
		{
			name: "unknown scope", path: "/v1/progression/records/owner1?scope=ghost",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_progressionApi_leaderboard(t *testing.T) {
	app := setup(t)

	warm := []core.LeaderboardEntry{
		{OwnerID: "owner2", Level: 5, Experience: 10},
		{OwnerID: "owner1", Level: 3, Experience: 40},
	}
	if err := app.cache.WarmLeaderboard(context.Background(), "class-7a", warm); err != nil {
		t.Fatalf("WarmLeaderboard() failed: %v", err)
	}

	// the global board stays cold: reads must fall back to the repository
	testutil.CreateRecord(t, app.recRepo, "owner3", null.String{}, 7, 5)

	tests := []httpTest{
		{name: "cached scope", path: "/v1/progression/leaderboard?scope=class-7a", wantData: marchallObj(t, warm)},
		{name: "cached scope truncated", path: "/v1/progression/leaderboard?scope=class-7a&limit=1", wantData: marchallObj(t, warm[:1])},
		{
			name: "cold fallback", path: "/v1/progression/leaderboard",
			wantData: marchallObj(t, []core.LeaderboardEntry{{OwnerID: "owner3", Level: 7, Experience: 5}}),
		},
		{name: "empty board", path: "/v1/progression/leaderboard?scope=ghost", wantData: marchallList(t, []interface{}{}...)},
		{
			name: "invalid limit", path: "/v1/progression/leaderboard?limit=lol", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"limit": "must be a positive integer"}),
		},
		{
			name: "non-positive limit", path: "/v1/progression/leaderboard?limit=0", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"limit": "must be a positive integer"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
