package normalize

import "strings"

const RoleStaff = "staff"

type User struct {
	ID          string `json:"_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

var (
	users = adapter[User]{name: "users", build: buildUser}

	UserAdapter Shaper = users
)

func Users(raw []byte) (Result[User], error) {
	return users.normalize(raw)
}

func UserRecord(raw []byte) (User, error) {
	return users.record(raw)
}

func buildUser(r record, _ int) (User, bool) {
	u := User{
		Username:    r.str("username", "userName", "user_name", "login"),
		Email:       r.str("email", "mail"),
		DisplayName: r.str("displayName", "display_name", "name", "fullName"),
		Role:        strings.ToLower(r.str("role", "userRole")),
		Status:      activeStatus(r),
	}
	if u.DisplayName == "" {
		u.DisplayName = joinNonEmpty(r.str("firstName", "first_name"), r.str("lastName", "last_name"))
	}
	if u.Role == "" {
		u.Role = RoleStaff
	}
	if u.Username == "" && u.Email == "" {
		return User{}, false
	}
	u.ID = r.str("_id", "id", "userId", "user_id")
	if u.ID == "" {
		key := u.Username
		if key == "" {
			key = strings.ToLower(u.Email)
		}
		u.ID = fallbackID("user", key)
	}
	return u, true
}
