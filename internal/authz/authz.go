// Package authz holds the pure authorization predicates. Predicates never
// touch storage and never return errors; callers translate a false result
// into a forbidden error at the boundary.
package authz

import "github.com/spec-kit/civic-portal/internal/domain"

// CanWorkIssue reports whether the actor may mutate the issue's lifecycle:
// admins always, staff and department heads on issues assigned to them or to
// their department, citizens never. Deliberately independent of the lifecycle
// graph: an unauthorized actor is rejected before edge validation, so the
// answer never leaks which transitions would be valid.
func CanWorkIssue(actor *domain.User, issue *domain.Issue) bool {
	if actor == nil || issue == nil || !actor.IsActive {
		return false
	}
	return canWorkIssue(actor, issue)
}

// CanSetPriority applies the same actor scoping as transitions. Priority is
// not subject to the lifecycle graph.
func CanSetPriority(actor *domain.User, issue *domain.Issue) bool {
	if actor == nil || issue == nil || !actor.IsActive {
		return false
	}
	return canWorkIssue(actor, issue)
}

// CanAssign reports whether the actor may change the issue's assignee.
func CanAssign(actor *domain.User, issue *domain.Issue) bool {
	if actor == nil || issue == nil || !actor.IsActive {
		return false
	}
	if domain.IsAdmin(actor.Role) {
		return true
	}
	return actor.Role == domain.RoleDepartmentHead && sameDepartment(actor, issue)
}

// CanManageUsers gates user administration.
func CanManageUsers(actor *domain.User) bool {
	return actor != nil && actor.IsActive && domain.IsAdmin(actor.Role)
}

// CanViewIssue reports whether the actor may read the issue and its timeline.
// Citizens see their own submissions; staff see their department's issues and
// their assignments; admins see everything.
func CanViewIssue(actor *domain.User, issue *domain.Issue) bool {
	if actor == nil || issue == nil || !actor.IsActive {
		return false
	}
	if domain.IsAdmin(actor.Role) {
		return true
	}
	if issue.SubmittedBy == actor.ID {
		return true
	}
	if domain.IsStaffRole(actor.Role) {
		return canWorkIssue(actor, issue)
	}
	return false
}

// CanDeleteComment allows only the original author to tombstone a comment.
func CanDeleteComment(actor *domain.User, comment *domain.Comment) bool {
	if actor == nil || comment == nil || !actor.IsActive {
		return false
	}
	return comment.AuthorID == actor.ID
}

func canWorkIssue(actor *domain.User, issue *domain.Issue) bool {
	if domain.IsAdmin(actor.Role) {
		return true
	}
	if !domain.IsStaffRole(actor.Role) {
		return false
	}
	if issue.AssignedTo != nil && *issue.AssignedTo == actor.ID {
		return true
	}
	return sameDepartment(actor, issue)
}

func sameDepartment(actor *domain.User, issue *domain.Issue) bool {
	return actor.Department != nil && issue.Department != nil && *actor.Department == *issue.Department
}
