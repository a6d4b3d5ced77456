package export

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ashenomo/tomigaya/internal/models"
)

// ListingFields is the column order for listing rows.
var ListingFields = []string{
	"link", "text", "rent", "ldk", "msq", "address",
	"name", "roomnumber", "leaseterm", "year", "build", "images",
}

// Synthetic columns used alongside ListingFields.
const (
	FieldID      = "id"
	FieldPayload = "payload"
)

// DBFields is the column order for database-sheet rows: the identity first,
// then the listing fields, then the full JSON payload for reloading.
var DBFields = append(append([]string{FieldID}, ListingFields...), FieldPayload)

// Renderer maps listing fields to typed cells. Numeric fields render as
// numbers when parsed and as their literal text otherwise; links, addresses
// and images render as hyperlink or image formulas against the host.
type Renderer struct {
	Host string
}

// Row renders the given fields of a listing into one row of cells.
func (r Renderer) Row(listing *models.Listing, fields []string) []Cell {
	cells := make([]Cell, 0, len(fields))
	for _, field := range fields {
		cells = append(cells, r.cell(listing, field))
	}
	return cells
}

func (r Renderer) cell(listing *models.Listing, field string) Cell {
	switch field {
	case FieldID:
		identity, err := listing.Identity()
		if err != nil {
			return String("None")
		}
		return String(identity)
	case FieldPayload:
		payload, err := json.Marshal(listing)
		if err != nil {
			return String("None")
		}
		return String(string(payload))
	case "link":
		if listing.Link == "" {
			return String("None")
		}
		return String("http://" + r.Host + listing.Link)
	case "rent":
		return numberCell(listing.Rent)
	case "msq":
		return numberCell(listing.Area)
	case "address":
		if listing.Address == "" {
			return String("None")
		}
		return Formula(fmt.Sprintf(`=HYPERLINK("google.com/maps/place/%s", "%s")`,
			listing.Address, listing.Address))
	case "images":
		if len(listing.Images) == 0 {
			return String("None")
		}
		return Formula(fmt.Sprintf(`=IMAGE("http://%s%s")`, r.Host, listing.Images[0]))
	case "active":
		return String(strconv.FormatBool(listing.Active))
	default:
		return stringCell(textField(listing, field))
	}
}

func numberCell(pn models.ParsedNumber) Cell {
	if pn.Parsed {
		return Number(pn.Value)
	}
	return String(pn.String())
}

func stringCell(value string) Cell {
	if value == "" {
		return String("None")
	}
	return String(value)
}

func textField(listing *models.Listing, field string) string {
	switch field {
	case "text":
		return listing.Text
	case "ldk":
		return listing.FloorPlan
	case "name":
		return listing.Name
	case "roomnumber":
		return listing.RoomNumber
	case "leaseterm":
		return listing.LeaseTerm
	case "year":
		return listing.BuildYear
	case "build":
		return listing.Construction
	default:
		return ""
	}
}
