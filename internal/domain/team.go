package domain

import "time"

// Team is a work group inside a department, led by one team leader.
type Team struct {
	ID           string
	DepartmentID string
	Name         string
	Description  string
	LeaderID     string
	MemberIDs    []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasMember reports whether userID is listed as a member.
func (t *Team) HasMember(userID string) bool {
	if t == nil {
		return false
	}
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// RemoveMember drops userID from the member set and reports whether it was present.
func (t *Team) RemoveMember(userID string) bool {
	for i, id := range t.MemberIDs {
		if id == userID {
			t.MemberIDs = append(t.MemberIDs[:i], t.MemberIDs[i+1:]...)
			return true
		}
	}
	return false
}

// AddMember appends userID unless already present.
func (t *Team) AddMember(userID string) {
	if !t.HasMember(userID) {
		t.MemberIDs = append(t.MemberIDs, userID)
	}
}
