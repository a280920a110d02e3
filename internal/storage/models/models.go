package models

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

type Domain string

const (
	DomainInventory   Domain = "inventory"
	DomainComposition Domain = "composition"
	DomainMovement    Domain = "movement"
	DomainUnknown     Domain = "unknown"
)

// Domains lists the routable domains in classifier order.
var Domains = []Domain{DomainInventory, DomainComposition, DomainMovement}

func ParseDomain(s string) (Domain, bool) {
	for _, d := range Domains {
		if string(d) == s {
			return d, true
		}
	}
	return DomainUnknown, false
}

type RoutingDecision struct {
	Domain     Domain  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

type LookupKind string

const (
	LookupCode LookupKind = "code"
	LookupName LookupKind = "name"
)

type Lookup struct {
	Kind  LookupKind `json:"kind"`
	Value string     `json:"value"`
}

// Quantity mirrors the CRUD layer's {quantity, real} pair.
type Quantity struct {
	Quantity int64 `json:"quantity"`
	Real     int64 `json:"real"`
}

type InventoryItem struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	QuantityPerBox    int64      `json:"quantityPerBox"`
	ReceivedQuantity  Quantity   `json:"receivedQuantity"`
	DeliveredQuantity Quantity   `json:"deliveredQuantity"`
	RestQuantity      Quantity   `json:"restQuantity"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
}

type ComboItem struct {
	ItemID   string `json:"itemId"`
	Quantity int64  `json:"quantity"`
}

type ProductCombo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Items     []ComboItem `json:"items"`
	DeletedAt *time.Time  `json:"deletedAt,omitempty"`
}

const (
	StatusReceived  = "received"
	StatusDelivered = "delivered"
	StatusReturned  = "returned"
)

type MovementItem struct {
	ItemID   string `json:"itemId"`
	Quantity int64  `json:"quantity"`
}

// MovementLog carries either the legacy single Item or the newer Items list.
type MovementLog struct {
	ID     string         `json:"id"`
	Item   *MovementItem  `json:"item,omitempty"`
	Items  []MovementItem `json:"items,omitempty"`
	Status string         `json:"status"`
	Date   time.Time      `json:"date"`
	Note   string         `json:"note,omitempty"`
	Tag    string         `json:"tag,omitempty"`
}

type DateRange struct {
	Gte time.Time `json:"gte"`
	Lte time.Time `json:"lte"`
}

type MovementFilter struct {
	ItemIDs []string   `json:"itemIds"`
	Status  string     `json:"status,omitempty"`
	Date    *DateRange `json:"date,omitempty"`
}

// MovementDigest aggregates every entry matching a filter but carries only
// the most recent ones. TotalQuantity counts the filtered items alone.
type MovementDigest struct {
	TotalCount    int
	TotalQuantity int64
	Samples       []MovementLog
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	ExpireAt       time.Time `json:"expireAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ConversationSummary struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ExpireAt       time.Time `json:"expireAt"`
	LastMessage    *Message  `json:"lastMessage,omitempty"`
}

type Feedback struct {
	FeedbackID     string    `json:"feedbackId"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId,omitempty"`
	Description    string    `json:"description"`
	Expected       string    `json:"expected,omitempty"`
	Actual         string    `json:"actual,omitempty"`
	Rating         *int      `json:"rating,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type UsageCounter struct {
	PeriodKey    string  `json:"periodKey"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalCost    float64 `json:"totalCost"`
}

type UserUsageCounter struct {
	UserID  string `json:"userId"`
	DateKey string `json:"dateKey"`
	Count   int    `json:"count"`
}
