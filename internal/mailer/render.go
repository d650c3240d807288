package mailer

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
)

const confirmationText = `Thank you for your order!

Dear {{.FirstName}},

Your order {{.OrderNumber}} has been successfully placed.

Order details:
{{range .Items}}- {{.Name}} x {{.Quantity}} - {{money .Price}}
{{end}}
Subtotal: {{money .Subtotal}}
{{if .HasDiscount}}Discount ({{.CouponCode}}): -{{money .Discount}}
{{end}}Total: {{money .Total}}

Track your shipment: {{.TrackingURL}}

This is an automated message from {{.StoreName}}. Please do not reply.
`

const confirmationHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Thank you for your order!</h2>
  <p>Dear {{.FirstName}},</p>
  <p>Your order <strong>{{.OrderNumber}}</strong> has been successfully placed.</p>
  <h3>Order Details:</h3>
  <ul>{{range .Items}}<li>{{.Name}} x {{.Quantity}} - {{money .Price}}</li>{{end}}</ul>
  <p>Subtotal: {{money .Subtotal}}</p>
  {{if .HasDiscount}}<p>Discount ({{.CouponCode}}): -{{money .Discount}}</p>{{end}}
  <p><strong>Total:</strong> {{money .Total}}</p>
  <p>You can track your shipment using the following link:</p>
  <p><a href="{{.TrackingURL}}">{{.TrackingURL}}</a></p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #777; font-size: 12px;">This is an automated message from {{.StoreName}}. Please do not reply.</p>
</div>
`

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

var (
	funcs    = map[string]any{"money": money}
	textTmpl = texttemplate.Must(texttemplate.New("confirmation.txt").Funcs(funcs).Parse(confirmationText))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("confirmation.html").Funcs(funcs).Parse(confirmationHTML))
)

type confirmationData struct {
	FirstName   string
	OrderNumber string
	Items       []models.OrderItem
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	CouponCode  string
	HasDiscount bool
	TrackingURL string
	StoreName   string
}

// RenderOrderConfirmation builds the confirmation email for order
func RenderOrderConfirmation(order *models.Order, storeName, trackingBase string) (Message, error) {
	firstName := strings.TrimSpace(order.CustomerInfo.FirstName)
	if firstName == "" {
		firstName = "Customer"
	}
	data := confirmationData{
		FirstName:   firstName,
		OrderNumber: order.OrderNumber,
		Items:       order.Items,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		Total:       order.Total,
		CouponCode:  order.CouponCode,
		HasDiscount: order.Discount.IsPositive(),
		TrackingURL: trackingBase + order.OrderNumber,
		StoreName:   storeName,
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return Message{}, err
	}

	return Message{
		To:      order.CustomerInfo.Email,
		Subject: "Order Confirmation - " + order.OrderNumber,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
