package model

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsVerified   bool      `db:"is_verified" json:"isVerified"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
