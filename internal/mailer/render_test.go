package mailer

import (
	"context"
	"testing"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleOrder() *models.Order {
	return &models.Order{
		OrderNumber: "ORD-1700000000000-ABCDE",
		CustomerInfo: models.CustomerInfo{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
		},
		Items: []models.OrderItem{
			{ProductID: 1, Name: "Sneaker", Price: decimal.RequireFromString("10"), Quantity: 2},
			{ProductID: 2, Name: "Cap", Price: decimal.RequireFromString("5.5"), Quantity: 1},
		},
		Subtotal:   decimal.RequireFromString("25.5"),
		Discount:   decimal.RequireFromString("5"),
		Total:      decimal.RequireFromString("20.5"),
		CouponCode: "FLAT5",
	}
}

func TestRenderOrderConfirmation_Text(t *testing.T) {
	msg, err := RenderOrderConfirmation(sampleOrder(), "Storefront", "http://demo-logistics.com/track/")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Order Confirmation - ORD-1700000000000-ABCDE", msg.Subject)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "order_confirmation_text", []byte(msg.Text))
}

func TestRenderOrderConfirmation_HTML(t *testing.T) {
	order := sampleOrder()
	order.Items[0].Name = "<b>Sneaker</b>"
	order.Discount = decimal.Zero
	order.Total = order.Subtotal
	order.CouponCode = ""

	msg, err := RenderOrderConfirmation(order, "Storefront", "http://demo-logistics.com/track/")
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "&lt;b&gt;Sneaker&lt;/b&gt; x 2 - $10.00")
	assert.Contains(t, msg.HTML, `<a href="http://demo-logistics.com/track/ORD-1700000000000-ABCDE">`)
	assert.Contains(t, msg.HTML, "<strong>Total:</strong> $25.50")
	assert.NotContains(t, msg.HTML, "Discount")
	assert.NotContains(t, msg.Text, "Discount")
}

func TestRenderOrderConfirmation_DefaultsName(t *testing.T) {
	order := sampleOrder()
	order.CustomerInfo.FirstName = "  "
	msg, err := RenderOrderConfirmation(order, "Storefront", "")
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Dear Customer,")
}

func TestNewSMTPMailer_Validates(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "a@b.c"})
	assert.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.local"})
	assert.Error(t, err)
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.local", Port: 587, From: "orders@shop.test"})
	require.NoError(t, err)
	assert.Error(t, m.Send(context.Background(), Message{To: "not an address"}))
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(zaptest.NewLogger(t)).Send(context.Background(), Message{To: "a@b.c"}))
}
