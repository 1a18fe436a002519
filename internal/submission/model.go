// Package submission models storefront form submissions and the rules that
// turn a raw request body into an Order or a Lead.
package submission

// Kind distinguishes the two form types accepted by the bridge.
type Kind string

const (
	KindOrder Kind = "order"
	KindLead  Kind = "lead"
)

// Customer identifies the person behind a submission.
type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// Delivery is the shipping destination of an order.
type Delivery struct {
	City    string `json:"city"`
	Address string `json:"address"`
}

// Item is one order line.
type Item struct {
	Title string  `json:"title"`
	Label string  `json:"label,omitempty"`
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`
}

// Submission is either an Order or a Lead. The interface is sealed so no other
// variant can flow through the pipeline.
type Submission interface {
	Kind() Kind
	Contact() Customer
	Items() []Item
	Total() float64
	Source() string
	sealed()
}

// Order is a validated purchase order.
type Order struct {
	Customer  Customer
	Delivery  Delivery
	Lines     []Item
	Amount    float64
	SourceURL string
}

func (o Order) Kind() Kind {
	return KindOrder
}

func (o Order) Contact() Customer {
	return o.Customer
}

// Items returns a copy of the order lines.
func (o Order) Items() []Item {
	if len(o.Lines) == 0 {
		return nil
	}
	out := make([]Item, len(o.Lines))
	copy(out, o.Lines)
	return out
}

func (o Order) Total() float64 {
	return o.Amount
}

func (o Order) Source() string {
	return o.SourceURL
}

func (Order) sealed() {}

// Lead is a validated callback request. It carries no delivery, items or total.
type Lead struct {
	FirstName string
	Phone     string
	SourceURL string
}

func (l Lead) Kind() Kind {
	return KindLead
}

// Contact returns the lead's customer record with an empty last name.
func (l Lead) Contact() Customer {
	return Customer{FirstName: l.FirstName, Phone: l.Phone}
}

func (l Lead) Items() []Item {
	return nil
}

func (l Lead) Total() float64 {
	return 0
}

func (l Lead) Source() string {
	return l.SourceURL
}

func (Lead) sealed() {}
