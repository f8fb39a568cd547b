package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the storefront account type carried on the profile.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalises s into a Role. Empty input yields the empty role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r == "" || r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// roleIDField maps each role to the wire field holding its role-specific id.
var roleIDField = map[Role]string{
	RoleCustomer: "customer_id",
	RoleSeller:   "seller_id",
	RoleAdmin:    "admin_id",
}

// RoleID is the id of the role-specific record (customer, seller or admin).
// Only the id matching Role can be represented.
type RoleID struct {
	Role  Role
	Value string
}

// IsZero reports whether no role id is set.
func (r RoleID) IsZero() bool { return r.Value == "" }

// UserProfile is the account summary returned by the backend on login.
type UserProfile struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	FirstName string
	LastName  string
	RoleID    RoleID
}

// HasRole reports whether the profile carries a usable role.
func (u *UserProfile) HasRole() bool {
	return u != nil && u.Role.Valid()
}

type userWire struct {
	ID         flexString `json:"id"`
	UserName   string     `json:"user_name,omitempty"`
	Username   string     `json:"username,omitempty"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	CustomerID flexString `json:"customer_id,omitempty"`
	SellerID   flexString `json:"seller_id,omitempty"`
	AdminID    flexString `json:"admin_id,omitempty"`
}

// UnmarshalJSON reads the backend's user payload. The role id is taken only
// from the field that matches the role; unknown roles are kept verbatim so the
// guard can reject them.
func (u *UserProfile) UnmarshalJSON(data []byte) error {
	var w userWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*u = UserProfile{
		ID:        string(w.ID),
		Username:  w.UserName,
		Email:     w.Email,
		Role:      Role(strings.ToLower(w.Role)),
		FirstName: w.FirstName,
		LastName:  w.LastName,
	}
	if u.Username == "" {
		u.Username = w.Username
	}

	var id flexString
	switch u.Role {
	case RoleCustomer:
		id = w.CustomerID
	case RoleSeller:
		id = w.SellerID
	case RoleAdmin:
		id = w.AdminID
	}
	if id != "" {
		u.RoleID = RoleID{Role: u.Role, Value: string(id)}
	}
	return nil
}

// MarshalJSON writes the profile in the backend's wire shape.
func (u UserProfile) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":         u.ID,
		"user_name":  u.Username,
		"email":      u.Email,
		"role":       string(u.Role),
		"first_name": u.FirstName,
		"last_name":  u.LastName,
	}
	if field, ok := roleIDField[u.RoleID.Role]; ok && !u.RoleID.IsZero() && u.RoleID.Role == u.Role {
		out[field] = u.RoleID.Value
	}
	return json.Marshal(out)
}

// flexString accepts both JSON strings and numbers; the backend emits integer ids.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
