package watcher

import (
	"fmt"
	"strings"
)

// EventClass is a bit set of filesystem notification kinds
type EventClass uint32

const (
	Access EventClass = 1 << iota
	Modify
	Attrib
	CloseWrite
	CloseNoWrite
	Open
	MovedFrom
	MovedTo
	Create
	Delete
	DeleteSelf
	MoveSelf
)

// DefaultClasses matches what the broker reports when no classes are configured
const DefaultClasses = Attrib | Access | Open

// isDirToken marks directory events in the wire form. It is metadata, not a class.
const isDirToken = "ISDIR"

var classNames = []struct {
	class EventClass
	name  string
}{
	{Access, "ACCESS"},
	{Modify, "MODIFY"},
	{Attrib, "ATTRIB"},
	{CloseWrite, "CLOSE_WRITE"},
	{CloseNoWrite, "CLOSE_NOWRITE"},
	{Open, "OPEN"},
	{MovedFrom, "MOVED_FROM"},
	{MovedTo, "MOVED_TO"},
	{Create, "CREATE"},
	{Delete, "DELETE"},
	{DeleteSelf, "DELETE_SELF"},
	{MoveSelf, "MOVE_SELF"},
}

// Has reports whether every bit of other is set in c
func (c EventClass) Has(other EventClass) bool {
	return other != 0 && c&other == other
}

// Names returns the class names in fixed bit order
func (c EventClass) Names() []string {
	var names []string
	for _, cn := range classNames {
		if c&cn.class != 0 {
			names = append(names, cn.name)
		}
	}
	return names
}

func (c EventClass) String() string {
	if c == 0 {
		return "NONE"
	}
	return strings.Join(c.Names(), "|")
}

// ParseClass resolves a single class name, case-insensitively
func ParseClass(name string) (EventClass, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, cn := range classNames {
		if cn.name == n {
			return cn.class, nil
		}
	}
	return 0, fmt.Errorf("unknown event class %q", name)
}

// ParseClasses folds a list of class names into a set. An empty list yields
// DefaultClasses.
func ParseClasses(names []string) (EventClass, error) {
	if len(names) == 0 {
		return DefaultClasses, nil
	}
	var set EventClass
	for _, name := range names {
		c, err := ParseClass(name)
		if err != nil {
			return 0, err
		}
		set |= c
	}
	return set, nil
}

// WatchTarget is a path plus the event classes to observe on it
type WatchTarget struct {
	Path    string
	Classes EventClass
}

// ChangeEvent is one reported filesystem notification
type ChangeEvent struct {
	Path    string
	Classes EventClass
	IsDir   bool
}

// String renders the event as CLASS[|CLASS...]<TAB>path, the form sent to
// subscribers.
func (e ChangeEvent) String() string {
	classes := e.Classes.String()
	if e.IsDir {
		classes += "|" + isDirToken
	}
	return classes + "\t" + e.Path
}

// ParseEvent reverses ChangeEvent.String. A trailing newline is tolerated.
func ParseEvent(line string) (ChangeEvent, error) {
	line = strings.TrimRight(line, "\r\n")
	head, path, ok := strings.Cut(line, "\t")
	if !ok || path == "" {
		return ChangeEvent{}, fmt.Errorf("malformed event line %q", line)
	}

	ev := ChangeEvent{Path: path}
	for _, token := range strings.Split(head, "|") {
		if token == isDirToken {
			ev.IsDir = true
			continue
		}
		c, err := ParseClass(token)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("parse event line: %w", err)
		}
		ev.Classes |= c
	}
	if ev.Classes == 0 {
		return ChangeEvent{}, fmt.Errorf("event line %q has no classes", line)
	}
	return ev, nil
}
