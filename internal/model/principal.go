package model

type Principal struct {
	UserID int64
	Role   RecipientType
}

func (p Principal) IsContractor() bool {
	return p.Role == RecipientContractor
}

func (p Principal) IsClaimant() bool {
	return p.Role == RecipientClaimant
}

func (p Principal) IsDispatcher() bool {
	return p.Role == RecipientDispatcher
}

func (p Principal) IsWebUser() bool {
	return p.Role == RecipientWebUser
}

// FieldUser reports whether the caller runs the mobile field app, the only
// client allowed to drive the stage buttons and GPS endpoints.
func (p Principal) FieldUser() bool {
	return p.Role == RecipientContractor || p.Role == RecipientClaimant
}
