package orchestrator

import (
	"bytes"
	"text/template"

	"frontdesk/internal/domain"
)

var locationNames = map[domain.Location]string{
	domain.LocationOrYehuda:   "Or Yehuda",
	domain.LocationRothschild: "Rothschild",
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(
	`Booking confirmation #{{.ID}}
Guest: {{.Guest}}
Location: {{.Location}}
{{- if .Room}}
Room: {{.Room}}
{{- end}}
Check-in: {{.CheckIn}}
Check-out: {{.CheckOut}}
Nights: {{.Nights}}
Total: {{.Total}} {{.Currency}}
`))

type confirmationView struct {
	ID       int64
	Guest    string
	Location string
	Room     string
	CheckIn  string
	CheckOut string
	Nights   int
	Total    string
	Currency string
}

// renderConfirmation depends only on the booking fields it prints.
func renderConfirmation(b *domain.Booking, currency string) (string, error) {
	name, ok := locationNames[b.Location]
	if !ok {
		name = string(b.Location)
	}
	view := confirmationView{
		ID:       b.ID,
		Guest:    b.GuestName,
		Location: name,
		Room:     b.RoomName,
		CheckIn:  b.CheckIn.Format("02/01/2006"),
		CheckOut: b.CheckOut.Format("02/01/2006"),
		Nights:   b.Nights(),
		Total:    b.Price.StringFixed(2),
		Currency: currency,
	}
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
