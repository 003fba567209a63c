package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which compact mode is used.
	LayoutCompactWidth = 100

	// LayoutSidePaneWidth is the minimum width to show recommendations
	// beside the movie list instead of below it.
	LayoutSidePaneWidth = 120

	// SidePaneWidth is the width of the recommendations pane.
	SidePaneWidth = 44
)

// Fixed line counts of the movie screen chrome.
const (
	headerLines     = 2
	movieChromeRows = 7 // search, tabs, list header, status, footer and padding
	movieDetailRows = 3
	recsBelowRows   = 7
)

// Timing constants.
const (
	// FlashDuration is how long transient messages stay visible.
	FlashDuration = 4 * time.Second
)
