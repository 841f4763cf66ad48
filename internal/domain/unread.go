package domain

import "time"

// UnreadIndex is the result of one reconciliation pass: for every chat with
// unread messages, its unread subset in chronological order. Rebuilt fully on
// every pass, never persisted.
type UnreadIndex struct {
	Chats map[string][]Message
	Total int
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	ChatsScanned int
	UnreadChats  int
	UnreadTotal  int
	TotalChanged bool
	StaleFailed  int
	Errors       int
	Duration     time.Duration
}
