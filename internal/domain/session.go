package domain

import "encoding/json"

// SessionState is derived from the token store on every read and never persisted.
type SessionState struct {
	Authenticated bool         `json:"is_authenticated"`
	User          *UserProfile `json:"user"`
}

// Credentials are submitted to the backend login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the backend's successful login payload.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	User        *UserProfile `json:"user"`
}

// Registration is forwarded to the backend registration endpoint as-is,
// minus the role-specific extras which depend on the account type.
type Registration struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Username  string         `json:"user_name"`
	Email     string         `json:"email"`
	Password  string         `json:"password"`
	Role      Role           `json:"role"`
	Extra     map[string]any `json:"-"`
}

// MarshalJSON flattens Extra (e.g. address, store_name) into the payload.
func (r Registration) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["first_name"] = r.FirstName
	out["last_name"] = r.LastName
	out["user_name"] = r.Username
	out["email"] = r.Email
	out["password"] = r.Password
	out["role"] = string(r.Role)
	return json.Marshal(out)
}
