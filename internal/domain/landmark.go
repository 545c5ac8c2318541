package domain

// Landmark is a titled point dropped on a beacon by one of its participants.
type Landmark struct {
	Document
	Title     string   `json:"title"`
	Location  Location `json:"location"`
	CreatedBy string   `json:"created_by"`
	BeaconID  string   `json:"beacon_id"`
}
