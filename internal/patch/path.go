package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// Target is the resolved shape of a patch path. It is a closed set:
// a path either names a root field or a field of one task.
type Target interface {
	target() // Sealed - only RootField and TaskField implement it
	String() string
}

// RootField addresses a scalar on WorkflowState, e.g. /overall_progress.
type RootField struct {
	Name string
}

func (RootField) target() {}

func (t RootField) String() string { return RootPath(t.Name) }

// TaskField addresses a scalar on one task, e.g. /tasks/2/status.
// Index is syntactically valid but not yet bounds-checked.
type TaskField struct {
	Index int
	Name  string
}

func (TaskField) target() {}

func (t TaskField) String() string { return TaskPath(t.Index, t.Name) }

// RootPath builds the path of a root field.
func RootPath(name string) string {
	return "/" + escapeSegment(name)
}

// TaskPath builds the path of a task field.
func TaskPath(index int, name string) string {
	return "/tasks/" + strconv.Itoa(index) + "/" + escapeSegment(name)
}

// ParsePath resolves the shape of a path without consulting any state.
// Errors are *PathResolutionError with OpIndex -1; the applier fills it in.
func ParsePath(path string) (Target, error) {
	fail := func(segment, reason string) error {
		return &PathResolutionError{OpIndex: -1, Path: path, Segment: segment, Reason: reason}
	}

	if path == "" {
		return nil, fail("", "replacing the whole document is not supported")
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fail("", "path must begin with /")
	}

	raw := strings.Split(path[1:], "/")
	segs := make([]string, len(raw))
	for i, s := range raw {
		u, err := unescapeSegment(s)
		if err != nil {
			return nil, fail(s, err.Error())
		}
		segs[i] = u
	}

	head := segs[0]
	if head != fieldTasks {
		if !isRootField(head) {
			return nil, fail(head, "no such field")
		}
		if len(segs) > 1 {
			return nil, fail(segs[1], fmt.Sprintf("field %q is a scalar", head))
		}
		return RootField{Name: head}, nil
	}

	if len(segs) == 1 {
		return nil, fail(head, "the task list cannot be replaced")
	}
	index, err := parseIndex(segs[1])
	if err != nil {
		return nil, fail(segs[1], err.Error())
	}
	if len(segs) == 2 {
		return nil, fail(segs[1], "a whole task cannot be replaced")
	}
	name := segs[2]
	if !isTaskField(name) {
		return nil, fail(name, "no such task field")
	}
	if len(segs) > 3 {
		return nil, fail(segs[3], fmt.Sprintf("field %q is a scalar", name))
	}
	return TaskField{Index: index, Name: name}, nil
}

// parseIndex accepts RFC 6901 array indices: "0" or digits without a leading zero.
func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty array index")
	}
	if s == "-" {
		return 0, fmt.Errorf("appending to the task list is not supported")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("array index must be a non-negative integer")
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("array index has a leading zero")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("array index out of range")
	}
	return n, nil
}

func unescapeSegment(s string) (string, error) {
	if !strings.Contains(s, "~") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '~' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling ~ escape")
		}
		switch s[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", fmt.Errorf("invalid escape ~%c", s[i+1])
		}
		i++
	}
	return b.String(), nil
}

func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
