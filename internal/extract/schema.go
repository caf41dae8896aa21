package extract

import (
	"fmt"
	"time"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

// ReceiptSchema constrains receipt extraction output.
var ReceiptSchema = &gemini.Schema{
	Type: gemini.TypeObject,
	Properties: map[string]*gemini.Schema{
		"date": {
			Type:        gemini.TypeString,
			Description: "Transaction date in YYYY-MM-DD format.",
		},
		"merchant_name": {Type: gemini.TypeString},
		"total_amount":  {Type: gemini.TypeNumber},
		"currency":      {Type: gemini.TypeString},
		"line_items": {
			Type: gemini.TypeArray,
			Items: &gemini.Schema{
				Type: gemini.TypeObject,
				Properties: map[string]*gemini.Schema{
					"description": {Type: gemini.TypeString},
					"quantity":    {Type: gemini.TypeNumber},
					"line_total":  {Type: gemini.TypeNumber},
				},
			},
		},
	},
	Required: []string{"date", "merchant_name", "total_amount", "currency"},
}

// VoiceSchema constrains voice extraction output. All eight fields are
// required.
var VoiceSchema = &gemini.Schema{
	Type: gemini.TypeObject,
	Properties: map[string]*gemini.Schema{
		"user_name": {
			Type:        gemini.TypeString,
			Description: "Extracted user or customer name.",
		},
		"phone_number": {
			Type:        gemini.TypeString,
			Description: "Extracted phone number (digits only).",
		},
		"product_name": {
			Type:        gemini.TypeString,
			Description: "The name of the product.",
		},
		"product_price": {Type: gemini.TypeNumber},
		"amount_purchased": {
			Type:        gemini.TypeNumber,
			Description: "The quantity/count of the product.",
		},
		"buying_date": {
			Type:        gemini.TypeString,
			Description: "Product buying date in YYYY-MM-DD format.",
		},
		"selling_date": {
			Type:        gemini.TypeString,
			Description: "Product selling date in YYYY-MM-DD format.",
		},
		"date_difference_days": {
			Type:        gemini.TypeInteger,
			Description: "The difference between selling date and buying date in days. Calculate this value yourself.",
		},
	},
	Required: []string{
		"user_name",
		"phone_number",
		"product_name",
		"product_price",
		"buying_date",
		"selling_date",
		"date_difference_days",
		"amount_purchased",
	},
}

// ReceiptPrompt is the instruction sent with every receipt.
const ReceiptPrompt = "Extract all fields from this receipt image. Focus on date, merchant, total, currency, and detailed line items (description, quantity, price). Ensure the output strictly follows the JSON schema provided."

// VoicePrompt embeds today's date so relative dates can be resolved.
func VoicePrompt(today time.Time) string {
	return "You are an expert data entry assistant. Listen to the following Bengali audio and extract the user's name, phone number, product name, product price, quantity purchased, buying date, and selling date. Dates might be relative (like 'today', 'yesterday'). Today's date is " +
		today.Format("2006-01-02") +
		". Convert all dates to YYYY-MM-DD format. Finally, calculate the difference in days between the selling and buying dates. Respond *only* with the JSON schema provided."
}

// ConfirmationText is the Bangla sentence read back after a voice entry.
func ConfirmationText(v *model.Voice) string {
	return fmt.Sprintf("বাংলায় নিশ্চিত করছি: ব্যবহারকারী %s, পণ্য %s, দাম %s টাকা, কেনার তারিখ %s, বিক্রির তারিখ %s।",
		v.UserName, v.ProductName, formatAmount(v.ProductPrice), v.BuyingDate, v.SellingDate)
}

// formatAmount prints whole amounts without a decimal point.
func formatAmount(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
