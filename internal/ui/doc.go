// Package ui is marquee's Bubble Tea interface.
//
// The model renders four screens (sign in, sign up, movies, profile) from
// controller snapshots. It never holds server data itself: every render
// reads the movies, catalog, recommendations and profile controllers, and
// a change signal from the app layer wakes the program whenever cached data
// or controller state moves.
//
// Blocking work (sign in, page loads, ratings, profile saves) runs in
// tea.Cmds and reports back as messages. Overlays (help, the avatar picker
// and the client log viewer) take every key while open.
package ui
