package dto

import (
	"time"

	"entrust-concierge-be/pkg/conversation"
)

type IssueVisitorRequest struct {
	// Optional: a returning widget may present its previous token to keep its
	// conversation.
	Token string `json:"token,omitempty"`
}

type VisitorResponse struct {
	VisitorId string    `json:"visitor_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

type SendMessageResponse struct {
	Accepted string `json:"accepted"`
}

type StatusResponse struct {
	Availability string `json:"availability"` // checking, online or offline
	Online       bool   `json:"online"`
	Reason       string `json:"reason,omitempty"`
}

type ContactDTO struct {
	Phone     string `json:"phone"`
	PhoneLink string `json:"phone_link"`
	Email     string `json:"email"`
}

type WidgetDTO struct {
	Open          bool   `json:"open"`
	InviteVisible bool   `json:"invite_visible"`
	InviteText    string `json:"invite_text,omitempty"`
	InviteAction  string `json:"invite_action,omitempty"`
}

type SessionResponse struct {
	VisitorId      string              `json:"visitor_id"`
	Name           string              `json:"name"`
	Turns          []conversation.Turn `json:"turns"`
	Typing         bool                `json:"typing"`
	Delivering     bool                `json:"delivering"`
	Availability   string              `json:"availability"`
	Widget         WidgetDTO           `json:"widget"`
	Contact        ContactDTO          `json:"contact"`
	Suggestions    []string            `json:"suggestions,omitempty"`
	ConfigRequired string              `json:"config_required,omitempty"`
}
