package domain

// User is a read-only projection of an identity in the external directory.
// Records are immutable once seeded; there are no mutation endpoints.
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatar,omitempty"`
	Roles     []string `json:"roles"`
}
