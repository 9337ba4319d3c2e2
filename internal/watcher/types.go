// file: internal/watcher/types.go
// version: 1.0.0
// guid: 3d6b0a7e-52c4-4c1f-8e0b-7f9a1d2c3e4b

package watcher

import "fmt"

// Kind classifies a Notification.
type Kind int

const (
	// Other is any change that is neither a create, rename nor remove.
	Other Kind = iota
	Create
	Rename
	Remove
	// Error carries a watch-layer failure in Notification.Err.
	Error
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Rename:
		return "rename"
	case Remove:
		return "remove"
	case Error:
		return "error"
	default:
		return "other"
	}
}

// Notification is one debounced filesystem change under a watched root.
type Notification struct {
	Kind Kind
	// Path is set for Create, Remove and Other.
	Path string
	// From and To are set for Rename.
	From string
	To   string
	// Op describes the raw operations folded into an Other.
	Op  string
	Err error

	// dir marks a Rename whose endpoints are directories.
	dir bool
}

func (n Notification) String() string {
	switch n.Kind {
	case Rename:
		return fmt.Sprintf("rename %s -> %s", n.From, n.To)
	case Error:
		return fmt.Sprintf("error %v", n.Err)
	case Other:
		return fmt.Sprintf("other %s (%s)", n.Path, n.Op)
	default:
		return fmt.Sprintf("%s %s", n.Kind, n.Path)
	}
}

// CreateOf returns a Create notification for path.
func CreateOf(path string) Notification { return Notification{Kind: Create, Path: path} }

// RemoveOf returns a Remove notification for path.
func RemoveOf(path string) Notification { return Notification{Kind: Remove, Path: path} }

// RenameOf returns a Rename notification from one path to another.
func RenameOf(from, to string) Notification { return Notification{Kind: Rename, From: from, To: to} }

// OtherOf returns an Other notification for path describing op.
func OtherOf(path, op string) Notification { return Notification{Kind: Other, Path: path, Op: op} }

// ErrorOf wraps err in an Error notification.
func ErrorOf(err error) Notification { return Notification{Kind: Error, Err: err} }
