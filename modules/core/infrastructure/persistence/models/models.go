package models

import (
	"database/sql"
	"time"
)

type Tenant struct {
	ID                  string
	Name                string
	StoreName           string
	Status              string
	PlanID              string
	SubscriptionEndDate sql.NullTime
	SuspendReason       string
	RoutingKeys         []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type User struct {
	ID           string
	Email        string
	PasswordHash sql.NullString
	IsActive     bool
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Role struct {
	ID          string
	Name        string
	Permissions []string
}

type RefreshToken struct {
	Token           string
	UserID          string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	CreatedByIP     sql.NullString
	IsRevoked       bool
	RevokedAt       sql.NullTime
	RevokedByIP     sql.NullString
	ReplacedByToken sql.NullString
}
