// Package domain defines the core business logic and data structures of the Furlong service.
// It contains the primary domain models, such as Article, Race, OddsRow and Conversation,
// as well as the repository interfaces that define the contracts for data persistence.
//
// This package serves as the central point for application-wide types and business rules,
// ensuring a clean separation between the service's core logic and its implementation details,
// such as the database, HTTP transport, or feed sources. By defining interfaces for repositories,
// the domain package remains independent of the data storage technology.
package domain
