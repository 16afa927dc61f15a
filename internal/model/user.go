package model

// User is the owner of provider accounts. Authentication lives outside this
// service; the record here exists for ownership checks and alert gating.
type User struct {
	BaseEntity
	Email string   `json:"email" db:"email"`
	Name  string   `json:"name" db:"name"`
	Tier  PlanTier `json:"tier" db:"tier"`
}

// EmailAlertsAllowed reports whether the user's tier includes email alerts.
func (u *User) EmailAlertsAllowed() bool {
	return u.Tier == TierPro || u.Tier == TierTeam
}
