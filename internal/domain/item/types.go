// Package item defines the marketplace listing types exchanged with the hub API.
package item

import "strings"

// Type is the category of a listed item.
type Type string

const (
	TypeBook      Type = "BOOK"
	TypeTool      Type = "TOOL"
	TypeFood      Type = "FOOD"
	TypeFurniture Type = "FURNITURE"
	TypeOther     Type = "OTHER"
)

// Types lists every known item type in display order.
var Types = []Type{TypeBook, TypeTool, TypeFood, TypeFurniture, TypeOther}

// ParseType maps a case-insensitive name to a Type.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Item is a listing as returned by the server.
type Item struct {
	ID            int64    `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Type          Type     `json:"type" yaml:"type"`
	IsForTrade    bool     `json:"isForTrade" yaml:"is_for_trade"`
	IsForDonation bool     `json:"isForDonation" yaml:"is_for_donation"`
	OwnerUsername string   `json:"ownerUsername" yaml:"owner"`
	Images        []string `json:"images" yaml:"images"`
}

// Availability renders the trade/donation flags for display.
func (i Item) Availability() string {
	switch {
	case i.IsForTrade && i.IsForDonation:
		return "Trade / Donation"
	case i.IsForTrade:
		return "Trade"
	case i.IsForDonation:
		return "Donation"
	default:
		return "-"
	}
}

// Details is the editable part of an item, sent as the itemDetails part of
// a create and as the body of an update.
type Details struct {
	Name          string `json:"name" validate:"notblank,max=255" label:"Name"`
	Description   string `json:"description" validate:"notblank" label:"Description"`
	Type          Type   `json:"type" validate:"required,oneof=BOOK TOOL FOOD FURNITURE OTHER" label:"Type"`
	IsForTrade    bool   `json:"isForTrade"`
	IsForDonation bool   `json:"isForDonation"`
}

// DetailsOf extracts the editable fields of i.
func DetailsOf(i Item) Details {
	return Details{
		Name:          i.Name,
		Description:   i.Description,
		Type:          i.Type,
		IsForTrade:    i.IsForTrade,
		IsForDonation: i.IsForDonation,
	}
}

// Image is one file to upload with an item.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}
