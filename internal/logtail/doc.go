// Package logtail reads the client's own JSON log file for display in the
// TUI.
//
// The client writes zerolog JSON lines to a file under the state directory
// because the terminal belongs to Bubble Tea. Tail returns the most recent
// lines through a fixed-size ring so large logs are never held in full, and
// Parse turns each line into an Entry:
//
//	entries, err := logtail.ReadEntries(cfg.LogPath(), 200)
//	for _, e := range entries {
//		fmt.Println(logtail.LevelTag(e.Level), e.Component, e.Message)
//	}
//
// Lines that are not JSON (a panic trace, a hand edit) are kept as plain
// messages rather than dropped.
package logtail
