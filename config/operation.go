package config

import (
	"slices"
	"strings"
)

// Operation is the single action a run performs across all brokers
type Operation string

const (
	ListMessages   Operation = "listMessages"
	CountMessages  Operation = "countMessages"
	RemoveMessages Operation = "removeMessages"
	ListAndRemove  Operation = "listAndRemove"
	Download       Operation = "download"
	Stats          Operation = "stats"
)

// Operations lists every supported operation
func Operations() []Operation {
	return []Operation{ListMessages, CountMessages, RemoveMessages, ListAndRemove, Download, Stats}
}

func (o Operation) Valid() bool {
	return slices.Contains(Operations(), o)
}

// Destructive reports whether the operation removes messages
func (o Operation) Destructive() bool {
	return o == RemoveMessages || o == ListAndRemove
}

func operationList() string {
	names := make([]string, 0, len(Operations()))
	for _, op := range Operations() {
		names = append(names, string(op))
	}
	return strings.Join(names, " | ")
}
