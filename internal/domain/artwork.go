package domain

// KeyPrefix namespaces every key this service writes to the store.
const KeyPrefix = "artsearch:"

// Artwork is the catalog document shape returned to callers.
// Document vectors are stored alongside these fields in the index but are
// always stripped before an Artwork leaves the repository layer.
type Artwork struct {
	ID             string `json:"id,omitempty"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Date           string `json:"date,omitempty"`
	Medium         string `json:"medium,omitempty"`
	Dimensions     string `json:"dimensions,omitempty"`
	Classification string `json:"classification,omitempty"`
	Department     string `json:"department,omitempty"`
	Collection     string `json:"collection,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Description    string `json:"description,omitempty"`
}
