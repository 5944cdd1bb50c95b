package so

import (
	"context"
	"fmt"
)

// User is a manager account, used to resolve case owners and comment
// authors to display names.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Note      string `json:"note"`
	Status    string `json:"status"`
}

// DisplayName prefers the human name and falls back to the email.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.getJSON(ctx, "connect/users", nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}
