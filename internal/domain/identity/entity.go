package identity

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// User is the identity returned by the backend after login or register.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UnmarshalJSON accepts numeric ids, the backend stores them as integers.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    json.RawMessage `json:"id"`
		Email string          `json:"email"`
		Name  string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Email = raw.Email
	u.Name = raw.Name
	u.ID = ""

	id := bytes.TrimSpace(raw.ID)
	if len(id) == 0 || string(id) == "null" {
		return nil
	}
	if id[0] == '"' {
		return json.Unmarshal(id, &u.ID)
	}
	var n json.Number
	if err := json.Unmarshal(id, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		u.ID = strconv.FormatInt(i, 10)
		return nil
	}
	u.ID = n.String()
	return nil
}

// Valid reports whether the user carries an id, the only field partitions depend on.
func (u *User) Valid() bool {
	return u != nil && u.ID != ""
}
