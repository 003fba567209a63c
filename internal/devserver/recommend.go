package devserver

import (
	"math"
	"sort"
)

// Weights of the recommendation score components.
const (
	weightCategory = 0.6
	weightRating   = 0.3
	weightRecency  = 0.1
	recencyYears   = 20.0
	likedThreshold = 4
)

type recommendation struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	ReleaseYear   int      `json:"releaseYear"`
	Categories    []string `json:"categories"`
	AverageRating float64  `json:"averageRating"`

	score float64
}

// recommend ranks movies u has not rated by overlap with the user's
// interests, their average rating and how recent they are. Interests are the
// profile categories plus the categories of movies the user rated highly.
func (s *Server) recommend(u user, limit int) []recommendation {
	movies := s.store.snapshotMovies()

	interests := make(map[string]bool, len(u.Categories))
	for _, id := range u.Categories {
		interests[id] = true
	}
	for _, m := range movies {
		if m.RatingBy(u.ID) >= likedThreshold {
			for _, id := range m.Categories {
				interests[id] = true
			}
		}
	}

	year := s.now().Year()
	out := make([]recommendation, 0, len(movies))
	for _, m := range movies {
		if m.RatingBy(u.ID) > 0 {
			continue
		}
		score := weightCategory*categoryMatch(m.Categories, interests) +
			weightRating*(m.AverageRating/5) +
			weightRecency*recency(m.ReleaseYear, year)
		out = append(out, recommendation{
			Title:         m.Title,
			Description:   m.Description,
			ReleaseYear:   m.ReleaseYear,
			Categories:    s.store.categoryNames(m.Categories),
			AverageRating: m.AverageRating,
			score:         math.Round(score*10000) / 10000,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func categoryMatch(ids []string, interests map[string]bool) float64 {
	if len(ids) == 0 || len(interests) == 0 {
		return 0
	}
	matches := 0
	for _, id := range ids {
		if interests[id] {
			matches++
		}
	}
	return float64(matches) / float64(len(ids))
}

func recency(releaseYear, currentYear int) float64 {
	age := float64(currentYear - releaseYear)
	if age < 0 {
		age = 0
	}
	return math.Max(0, 1-age/recencyYears)
}
