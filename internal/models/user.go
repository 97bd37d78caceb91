package models

import (
	"time"
)

// User is the account record created the first time a phone number is
// verified. Stored in the single-table layout under USER#<phone>.
type User struct {
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	Name        string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
	LastLoginAt time.Time `json:"last_login_at" dynamodbav:"last_login_at"`
}

func (u *User) GetPK() string {
	return "USER#" + u.PhoneNumber
}

func (u *User) GetSK() string {
	return "METADATA"
}
