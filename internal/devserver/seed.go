package devserver

import (
	"fmt"
	"time"

	"github.com/five82/marquee/internal/api"
)

// Demo account created by the seed.
const (
	DemoEmail    = "demo@marquee.dev"
	DemoPassword = "marquee123"
)

var seedCategories = []string{
	"Action", "Animation", "Comedy", "Crime", "Documentary",
	"Drama", "Horror", "Romance", "Sci-Fi", "Thriller",
}

type seedMovie struct {
	title       string
	year        int
	categories  []string
	description string
	ratings     []int // one rating per critic, 0 = unrated
}

var seedMovies = []seedMovie{
	{"The Godfather", 1972, []string{"Crime", "Drama"}, "A crime dynasty's patriarch hands control to his reluctant son.", []int{5, 5, 4}},
	{"Pulp Fiction", 1994, []string{"Crime", "Thriller"}, "Intertwined stories of Los Angeles criminals.", []int{5, 4, 4}},
	{"Spirited Away", 2001, []string{"Animation"}, "A girl works in a bathhouse for spirits to free her parents.", []int{5, 5, 5}},
	{"Alien", 1979, []string{"Horror", "Sci-Fi"}, "A commercial crew meets a deadly organism.", []int{4, 5, 0}},
	{"Heat", 1995, []string{"Action", "Crime", "Drama"}, "A detective pursues a disciplined thief.", []int{4, 4, 5}},
	{"Arrival", 2016, []string{"Drama", "Sci-Fi"}, "A linguist learns to talk with visitors.", []int{5, 4, 0}},
	{"Groundhog Day", 1993, []string{"Comedy", "Romance"}, "A weatherman relives the same day.", []int{4, 4, 4}},
	{"Mad Max: Fury Road", 2015, []string{"Action", "Sci-Fi"}, "A desert chase across a ruined world.", []int{5, 4, 5}},
	{"Parasite", 2019, []string{"Comedy", "Drama", "Thriller"}, "A poor family infiltrates a rich household.", []int{5, 5, 4}},
	{"Free Solo", 2018, []string{"Documentary"}, "A climber attempts El Capitan without ropes.", []int{4, 0, 4}},
	{"The Shining", 1980, []string{"Horror"}, "A winter caretaker unravels in an isolated hotel.", []int{4, 3, 5}},
	{"Before Sunrise", 1995, []string{"Drama", "Romance"}, "Two strangers spend one night in Vienna.", []int{4, 5, 0}},
	{"Toy Story", 1995, []string{"Animation", "Comedy"}, "Toys compete for their owner's affection.", []int{4, 4, 5}},
	{"Se7en", 1995, []string{"Crime", "Thriller"}, "Detectives hunt a killer staging the seven sins.", []int{4, 4, 3}},
	{"Blade Runner 2049", 2017, []string{"Drama", "Sci-Fi"}, "A replicant hunter uncovers a buried secret.", []int{4, 5, 4}},
	{"Get Out", 2017, []string{"Horror", "Thriller"}, "A weekend visit to a girlfriend's family turns sinister.", []int{5, 4, 0}},
	{"Amélie", 2001, []string{"Comedy", "Romance"}, "A shy waitress meddles kindly in strangers' lives.", []int{4, 0, 4}},
	{"Die Hard", 1988, []string{"Action", "Thriller"}, "An off-duty cop fights terrorists in a tower.", []int{4, 4, 4}},
	{"Moonlight", 2016, []string{"Drama"}, "Three chapters in the life of a young man.", []int{5, 4, 4}},
	{"The Matrix", 1999, []string{"Action", "Sci-Fi"}, "A hacker learns reality is a simulation.", []int{5, 5, 4}},
	{"Paddington 2", 2017, []string{"Comedy", "Animation"}, "A bear is framed for theft.", []int{5, 0, 4}},
	{"Fargo", 1996, []string{"Comedy", "Crime", "Thriller"}, "A desperate salesman arranges a kidnapping.", []int{4, 5, 4}},
	{"Jaws", 1975, []string{"Horror", "Thriller"}, "A shark terrorizes a beach town.", []int{4, 4, 0}},
	{"Whiplash", 2014, []string{"Drama"}, "A drummer studies under a ruthless instructor.", []int{5, 4, 5}},
	{"Inception", 2010, []string{"Action", "Sci-Fi", "Thriller"}, "Thieves plant an idea inside a dream.", []int{4, 5, 4}},
	{"Casablanca", 1942, []string{"Drama", "Romance"}, "An exile must choose between love and virtue.", []int{5, 4, 0}},
	{"Won't You Be My Neighbor?", 2018, []string{"Documentary"}, "The life of a children's television host.", []int{4, 5, 0}},
	{"Knives Out", 2019, []string{"Comedy", "Crime"}, "A detective investigates a novelist's death.", []int{4, 4, 4}},
	{"Hereditary", 2018, []string{"Drama", "Horror"}, "A grieving family unravels after a death.", []int{4, 3, 0}},
	{"WALL-E", 2008, []string{"Animation", "Romance", "Sci-Fi"}, "A cleanup robot follows a probe into space.", []int{5, 4, 5}},
}

var seedCritics = []string{"critic-ana", "critic-ben", "critic-cy"}

func (s *Server) seed() error {
	ids := make(map[string]string, len(seedCategories))
	for _, name := range seedCategories {
		ids[name] = s.store.addCategory(name).ID
	}

	criticIDs := make([]string, 0, len(seedCritics))
	for _, name := range seedCritics {
		criticIDs = append(criticIDs, stableID("user", name))
	}

	for _, sm := range seedMovies {
		m := api.Movie{
			Title:       sm.title,
			Description: sm.description,
			ReleaseYear: sm.year,
		}
		for _, c := range sm.categories {
			id, ok := ids[c]
			if !ok {
				return fmt.Errorf("seed movie %q: unknown category %q", sm.title, c)
			}
			m.Categories = append(m.Categories, id)
		}
		for i, stars := range sm.ratings {
			if stars > 0 && i < len(criticIDs) {
				m.Ratings = append(m.Ratings, api.Rating{UserID: criticIDs[i], Rating: stars})
			}
		}
		s.store.addMovie(m)
	}

	hash, err := s.hashPassword(DemoPassword)
	if err != nil {
		return err
	}
	_, err = s.store.addUser(user{
		ID:           stableID("user", DemoEmail),
		Name:         "Demo Viewer",
		Email:        DemoEmail,
		PasswordHash: hash,
		Address:      "1 Projector Lane",
		DOB:          time.Date(1990, time.April, 2, 0, 0, 0, 0, time.UTC),
		Categories:   []string{ids["Drama"], ids["Sci-Fi"]},
	})
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}
	return nil
}
