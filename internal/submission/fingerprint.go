package submission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type orderKey struct {
	Kind    Kind      `json:"k"`
	Phone   string    `json:"phone"`
	City    string    `json:"city"`
	Address string    `json:"address"`
	Items   []itemKey `json:"items"`
	Total   float64   `json:"total"`
}

type itemKey struct {
	Title string  `json:"t"`
	Label string  `json:"l"`
	Qty   float64 `json:"q"`
	Price float64 `json:"p"`
}

type leadKey struct {
	Kind  Kind   `json:"k"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// Fingerprint digests the fields that make two submissions the same request:
// contact phone, destination, lines and total for orders; phone and first
// name for leads.
func Fingerprint(s Submission) string {
	var doc any
	switch v := s.(type) {
	case Order:
		items := make([]itemKey, 0, len(v.Lines))
		for _, it := range v.Lines {
			items = append(items, itemKey{Title: it.Title, Label: it.Label, Qty: it.Qty, Price: it.Price})
		}
		doc = orderKey{
			Kind:    KindOrder,
			Phone:   v.Customer.Phone,
			City:    v.Delivery.City,
			Address: v.Delivery.Address,
			Items:   items,
			Total:   v.Amount,
		}
	case Lead:
		doc = leadKey{Kind: KindLead, Phone: v.Phone, Name: v.FirstName}
	}

	// Marshal cannot fail for these plain structs.
	data, _ := json.Marshal(doc)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
