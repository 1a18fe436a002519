package submission

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// phonePattern accepts an optional leading +, a digit, then at least eight
// digits, spaces or hyphens.
var phonePattern = regexp.MustCompile(`^\+?\d[\d\s-]{8,}$`)

var validate = newValidator()

// ValidationError names the first rule a submission violated. Its message is
// safe to return to the caller verbatim.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Rule
}

const (
	RuleRequired = "required"
	RuleInvalid  = "invalid"
)

// orderForm lists order fields in the order their rules are checked.
type orderForm struct {
	FirstName string `json:"firstName" validate:"nonblank"`
	LastName  string `json:"lastName" validate:"nonblank"`
	Phone     string `json:"phone" validate:"phone"`
	City      string `json:"city" validate:"nonblank"`
	Address   string `json:"address" validate:"nonblank"`
	Items     []Item `json:"items" validate:"min=1"`
}

type leadForm struct {
	FirstName string `json:"firstName" validate:"nonblank"`
	Phone     string `json:"phone" validate:"phone"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidateOrder checks p against the order rules and builds an Order with
// trimmed fields. The first failing rule is returned as a *ValidationError.
func ValidateOrder(p Payload) (Order, error) {
	form := orderForm{
		FirstName: stringValue(p.customerField("firstName")),
		LastName:  stringValue(p.customerField("lastName")),
		Phone:     scalarText(p.customerField("phone")),
		City:      stringValue(p.deliveryField("city")),
		Address:   stringValue(p.deliveryField("address")),
		Items:     parseItems(p.Items),
	}
	if err := check(form); err != nil {
		return Order{}, err
	}
	total, ok := parseAmount(p.Total)
	if !ok {
		return Order{}, &ValidationError{Field: "total", Rule: RuleRequired}
	}

	return Order{
		Customer: Customer{
			FirstName: strings.TrimSpace(form.FirstName),
			LastName:  strings.TrimSpace(form.LastName),
			Phone:     strings.TrimSpace(form.Phone),
		},
		Delivery: Delivery{
			City:    strings.TrimSpace(form.City),
			Address: strings.TrimSpace(form.Address),
		},
		Lines:     form.Items,
		Amount:    total,
		SourceURL: strings.TrimSpace(stringValue(p.SourceURL)),
	}, nil
}

// ValidateLead checks p against the lead rules. Only the first name, phone and
// source URL are read; everything else in p is ignored.
func ValidateLead(p Payload) (Lead, error) {
	form := leadForm{
		FirstName: stringValue(p.customerField("firstName")),
		Phone:     scalarText(p.customerField("phone")),
	}
	if err := check(form); err != nil {
		return Lead{}, err
	}
	return Lead{
		FirstName: strings.TrimSpace(form.FirstName),
		Phone:     strings.TrimSpace(form.Phone),
		SourceURL: strings.TrimSpace(stringValue(p.SourceURL)),
	}, nil
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	first := fieldErrs[0]
	rule := RuleRequired
	if first.Tag() == "phone" {
		rule = RuleInvalid
	}
	return &ValidationError{Field: first.Field(), Rule: rule}
}

func parseItems(raw json.RawMessage) []Item {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []Item{}
	}
	items := make([]Item, 0, len(elems))
	for _, elem := range elems {
		fields := object(elem)
		items = append(items, Item{
			Title: strings.TrimSpace(scalarText(fields["title"])),
			Label: strings.TrimSpace(scalarText(fields["label"])),
			Qty:   numberOrZero(fields["qty"]),
			Price: numberOrZero(fields["price"]),
		})
	}
	return items
}
