package model

import "github.com/google/uuid"

// User is the buyer as known by the user directory.
type User struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Email string    `json:"email" db:"email"`
	Name  string    `json:"name" db:"name"`
}

// Delivery is a shipping method a buyer can choose.
type Delivery struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}
