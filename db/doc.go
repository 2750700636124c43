// Package db provides the database layer for the Furlong service.
// It encapsulates all interactions with the underlying SQL database, managing
// data persistence for the content catalogue and per-user settings: articles,
// the race schedule, bookmakers and odds, analyst conversations, preferences,
// pinned widgets, watchlists, ambassadors, referral clicks and logs.
//
// This package is responsible for:
// - Establishing and managing database connections (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Implementing repository interfaces (e.g., `ArticleRepository`, `OddsRepository`)
//   to perform CRUD operations.
// - Handling data conversion between domain-specific structs (from the `domain` package)
//   and database-friendly structs, including the use of `sql.Null*` types for nullable fields.
// - Managing database migrations (`migrations/`).
// - Providing common database utility types (`types.go`).
package db
