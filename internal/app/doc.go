// Package app is the composition root for marquee.
//
// # Overview
//
// Run loads configuration, points the logger at the state directory, opens
// the durable session store and wires the client data layer before handing
// control to the TUI. NewServices performs the wiring alone so tests can run
// the whole layer against an in-process backend.
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       │
//	       ├─────> config.LoadDotEnv() / config.Load()
//	       ├─────> logging.Init()          JSON to <state_dir>/marquee.log
//	       ├─────> session.OpenBadgerStore()
//	       ├─────> NewServices()
//	       │         ├─> session.Holder     bearer token, persisted
//	       │         ├─> api.Client         Tokens = Holder
//	       │         ├─> query.Cache        OnChange -> notifier
//	       │         └─> controllers        movies, rating, profile, account
//	       ├─────> StartRevalidator()
//	       └─────> ui.Run()                 blocks
//
// # Change notification
//
// The cache, the movie list and the session holder all report changes to a
// single notifier. The notifier holds at most one pending signal, so bursts
// of changes wake the UI once and it re-reads controller snapshots.
//
// # Session changes
//
// When the token is cleared, by logout or by a 401 on any request, every
// cached query is dropped. In-flight fetches from the old session settle
// against the bumped cache epoch and are discarded.
//
// # Background revalidation
//
// StartRevalidator refetches successful queries whose staleness window has
// elapsed, the terminal analogue of refetch-on-focus. Queries in the error
// state are left alone until the user retries. Consecutive failures double
// the wait up to maxBackoff.
package app
