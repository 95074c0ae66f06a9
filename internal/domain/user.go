package domain

import "time"

type User struct {
	UserID            string    `json:"userId"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	GatewayCustomerID string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
