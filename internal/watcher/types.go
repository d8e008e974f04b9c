package watcher

import (
	"path/filepath"
	"time"
)

// Operation represents the type of file system operation.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

// String returns the string representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a settled change to one path under the watched root.
type Event struct {
	Path      string
	Operation Operation
	Time      time.Time
}

// ChangeHandler receives the events settled in one debounce window,
// sorted by path.
type ChangeHandler func(events []Event)

// Dirs returns the distinct parent directories touched by events, in
// first-seen order.
func Dirs(events []Event) []string {
	seen := make(map[string]struct{}, len(events))
	var dirs []string
	for _, ev := range events {
		dir := filepath.Dir(ev.Path)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}
