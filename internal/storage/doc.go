package storage

// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - Tracker subscriptions (so chats survive restarts)
//   - The prized item watchlist
//   - Audit log appends (operator and user actions)
