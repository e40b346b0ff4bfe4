package eam

// LocationPayload is an upsert body for a functional location. Field names
// follow the target's object schema.
type LocationPayload struct {
	LocationID  string            `json:"location"`
	Description string            `json:"description"`
	Parent      string            `json:"parent,omitempty"`
	Site        string            `json:"siteid"`
	Org         string            `json:"orgid"`
	Type        string            `json:"type,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// LocationRef identifies a location as the target knows it.
type LocationRef struct {
	ID     string `json:"location"`
	Parent string `json:"parent,omitempty"`
}

// AssetPayload is an upsert body for an asset record.
type AssetPayload struct {
	AssetNum       string            `json:"assetnum"`
	Description    string            `json:"description"`
	LocationID     string            `json:"location"`
	Site           string            `json:"siteid"`
	Org            string            `json:"orgid"`
	Classification string            `json:"classstructureid,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// AssetRef identifies an asset as the target knows it.
type AssetRef struct {
	ID string `json:"assetnum"`
}
