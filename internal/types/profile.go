package types

// ProfileMetadata contains user profile metadata (kind 0)
type ProfileMetadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	About       string `json:"about,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Profile is a profile as seen in a feed: the author, the metadata and the
// created_at of the kind 0 event it came from.
type Profile struct {
	PubKey    string          `json:"pubkey"`
	CreatedAt int64           `json:"created_at"`
	Metadata  ProfileMetadata `json:"metadata"`
}
