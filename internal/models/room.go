package models

// Room represents a bookable meeting room
type Room struct {
	ID           string `json:"id,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Department   string `json:"department,omitempty"`
	Floor        string `json:"floor,omitempty"`
}

// Label returns the string shown in the room selector
func (r *Room) Label() string {
	if r.Department == "" && r.Floor == "" {
		return r.DisplayName
	}
	return r.DisplayName + "  [ " + r.Department + " - " + r.Floor + " ]"
}
