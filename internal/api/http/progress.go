package http

import (
	"net/http"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
)

type progressResp struct {
	attempt.Progress
	Accuracy  int `json:"accuracy"` // percent
	NextLevel int `json:"nextLevelXp"`
}

func toProgressResp(p attempt.Progress) progressResp {
	return progressResp{Progress: p, Accuracy: p.Accuracy(), NextLevel: p.Level * attempt.LevelXP}
}

// GET /me/progress
func MyProgressHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := store.GetProgress(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, toProgressResp(p))
	}
}

// GET /leaderboard?limit=10
func LeaderboardHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.Leaderboard(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 10))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]progressResp, len(list))
		for i, p := range list {
			out[i] = toProgressResp(p)
		}
		respondJSON(w, http.StatusOK, out)
	}
}
