package models

import "time"

// ActionKind identifies a trackable visitor interaction on a published card.
type ActionKind string

const (
	ActionNFCScan       ActionKind = "nfc_scan"
	ActionPhoneClick    ActionKind = "phone_click"
	ActionWhatsAppClick ActionKind = "whatsapp_click"
	ActionEmailClick    ActionKind = "email_click"
	ActionSMSClick      ActionKind = "sms_click"
	ActionWebsiteClick  ActionKind = "website_click"
	ActionSocialClick   ActionKind = "social_click"
	ActionLocationClick ActionKind = "location_click"
	ActionWalletAdded   ActionKind = "wallet_added"
	ActionContactAdded  ActionKind = "contact_added"
	ActionSharedContact ActionKind = "shared_contact"
	ActionTimeOnCard    ActionKind = "time_on_card"
	// ActionVisit is awarded per repeat page load and is never deduplicated.
	ActionVisit ActionKind = "visit"
)

// Temperature is the follow-up priority derived from a score.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// ContactFields holds the identifying details a visitor may submit.
type ContactFields struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// IsEmpty reports whether no contact field is set.
func (c ContactFields) IsEmpty() bool {
	return c.Name == "" && c.Email == "" && c.Phone == "" && c.Company == ""
}

// Merge returns c with every non-empty field of other applied on top.
// Empty fields in other never clear a value already present in c.
func (c ContactFields) Merge(other ContactFields) ContactFields {
	if other.Name != "" {
		c.Name = other.Name
	}
	if other.Email != "" {
		c.Email = other.Email
	}
	if other.Phone != "" {
		c.Phone = other.Phone
	}
	if other.Company != "" {
		c.Company = other.Company
	}
	return c
}

// EngagementRecord is the remotely persisted counterpart of a visitor session.
// Temperature is filled in on read from Score and is never stored.
type EngagementRecord struct {
	ID     string `json:"id"`
	CardID string `json:"card_id"`
	ContactFields
	Score       int          `json:"score"`
	ActionLog   []ActionKind `json:"action_log"`
	Temperature Temperature  `json:"temperature"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// CreateEngagementRequest is the request body for POST /engagements.
type CreateEngagementRequest struct {
	ID     string `json:"id,omitempty"` // optional client-generated uuid
	CardID string `json:"card_id"`
	ContactFields
	Score     int          `json:"score"`
	ActionLog []ActionKind `json:"action_log"`
}

// UpdateEngagementRequest is the request body for PATCH /engagements/{id}.
// ActionLog holds the entries recorded since ActionLogOffset.
type UpdateEngagementRequest struct {
	Score           int          `json:"score"`
	ActionLogOffset int          `json:"action_log_offset"`
	ActionLog       []ActionKind `json:"action_log"`
	ContactFields
}

// ListEngagementsResponse is the response payload for a card's engagements.
type ListEngagementsResponse struct {
	CardID      string             `json:"card_id"`
	Engagements []EngagementRecord `json:"engagements"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
