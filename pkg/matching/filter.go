package matching

import "github.com/Ramsey-B/clover/pkg/models"

// Eligible is the reciprocal hard filter: candidate must have the gender
// user prefers, candidate's preference must select user's gender, and
// nobody matches themselves. The profile store applies the same rule in SQL.
func Eligible(user, candidate *models.Profile) bool {
	if user == nil || candidate == nil || user.ID == candidate.ID {
		return false
	}
	if user.Preference == nil || candidate.Preference == nil {
		return false
	}

	if preferred, constrained := user.Preference.PreferredGender(); constrained {
		if candidate.Gender == nil || *candidate.Gender != preferred {
			return false
		}
	}

	if _, constrained := candidate.Preference.PreferredGender(); !constrained {
		return true
	}
	return user.Gender != nil && candidate.Preference.Accepts(*user.Gender)
}
