package domain

import "time"

// Comment is a citizen or staff remark on an issue. Deletion is a tombstone:
// the row stays so sequence numbering and external references remain stable,
// but tombstoned comments are excluded from timeline reads.
type Comment struct {
	ID        string
	IssueID   string
	AuthorID  string
	Text      string
	Seq       int64
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the comment has been tombstoned.
func (c *Comment) Deleted() bool {
	return c.DeletedAt != nil
}
