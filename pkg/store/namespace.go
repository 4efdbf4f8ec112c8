package store

import (
	"fmt"
	"strings"
)

// Namespace identifies the storage scope of a request: every operation runs
// against one user, and most also against one note within that user. The
// backends derive their physical layout from it. SurrealDB maps a namespace
// to per-scope table names through the Table methods below; PostgreSQL keeps
// fixed tables and filters on the sanitized user/note keys instead.
//
// Raw user and note ids are caller-supplied strings and never reach a query
// as identifiers. Table names are built only from sanitized keys, and even
// then passed through type::table($tb) rather than interpolated into
// SurrealQL text.
type Namespace struct {
	user string
	note string

	userKey string
	noteKey string
}

// NewUserNamespace scopes to a user without a note. Note-level Table methods
// panic on a user-only namespace; calling them is a programming error.
func NewUserNamespace(user string) Namespace {
	return Namespace{user: user, userKey: sanitizeKey(user)}
}

// NewNoteNamespace scopes to one note of one user.
func NewNoteNamespace(user, note string) Namespace {
	return Namespace{
		user:    user,
		note:    note,
		userKey: sanitizeKey(user),
		noteKey: sanitizeKey(note),
	}
}

func (n Namespace) User() string { return n.user }
func (n Namespace) Note() string { return n.note }

// UserKey returns the sanitized user id, usable as a table name fragment or
// a scoping column value.
func (n Namespace) UserKey() string { return n.userKey }

// NoteKey returns the sanitized note id.
func (n Namespace) NoteKey() string { return n.noteKey }

// HasNote reports whether the namespace is scoped to a note.
func (n Namespace) HasNote() bool { return n.note != "" }

// LineTable is the per-note line collection.
func (n Namespace) LineTable() string {
	return "note_" + n.userKey + "_" + n.mustNoteKey()
}

// IndexTable is the per-user note index.
func (n Namespace) IndexTable() string {
	return "note_list_" + n.userKey
}

// FileTable is the per-note blob metadata collection.
func (n Namespace) FileTable() string {
	return "files_" + n.userKey + "_" + n.mustNoteKey()
}

// ChunkTable is the per-note blob chunk collection.
func (n Namespace) ChunkTable() string {
	return "chunks_" + n.userKey + "_" + n.mustNoteKey()
}

func (n Namespace) mustNoteKey() string {
	if n.noteKey == "" {
		panic(fmt.Sprintf("namespace for user %q is not scoped to a note", n.user))
	}
	return n.noteKey
}

// sanitizeKey maps an arbitrary id onto the character set safe inside a
// SurrealDB table name. Lowercase letters and digits pass through; every
// other byte, underscore included, becomes "_" plus its two-digit hex code.
// Escaping underscore itself keeps the mapping injective, so two distinct
// ids never collide on one table.
func sanitizeKey(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
