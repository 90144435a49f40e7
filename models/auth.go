package models

import "time"

type JsonModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GoogleAuthSignIn struct {
	IdToken  string `json:"idToken" validate:"required"`
	Platform string `json:"platform" validate:"required"`
}

type SignUpIn struct {
	ProfileIn
	IdToken  string `json:"idToken" validate:"required"`
	Platform string `json:"platform" validate:"required"`
}

type ProfileIn struct {
	Name      string `json:"name" validate:"required"`
	Company   string `json:"company" validate:"required"`
	UTMSource string `json:"utm_source" validate:"required"`
}

type GoogleSignInOut struct {
	Email string `json:"email"`

	// these two null in first step
	Id        string `json:"id"`
	CompanyId string `json:"company_id"`

	New         bool   `json:"new"`
	Avatar      string `json:"avatar"`
	AccessToken string `json:"access_token"`
}

type UserMeInfoOut struct {
	Id                   string  `json:"id"`
	CompanyId            string  `json:"company_id"`
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Status               string  `json:"-"`
	AvatarURL            string  `json:"avatar_url"`
	ReceiveNotifications bool    `json:"receive_notifications"`
	FullBodyAvatarUrl    *string `json:"user_fullbody_avatar_url"`
	FullBodyAvatarSet    bool    `json:"full_body_avatar_set"`
}

type CompanyInfoOut struct {
	Name             string       `json:"name"`
	Subscription     Subscription `json:"subscription"`
	OwnerId          uint         `json:"owner_id"`
	Id               uint         `json:"id"`
	Active           bool         `json:"active"`
	TrialStartedDate *int64       `json:"trial_started_date"`
	TrialDays        *uint        `json:"trial_days"`
	FullAdminAccess  bool         `json:"full_admin_access"`
}
