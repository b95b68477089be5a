package dialog

import (
	"fmt"
	"strings"

	"schedulebot/models"
)

const (
	msgInvalidOption   = "❌ Invalid option. Please reply with one of the numbers shown."
	msgUnavailable     = "⚠️ Our booking service is not available right now. Please try again in a few minutes."
	msgSlotTaken       = "😕 Sorry, that time was booked by someone else a moment ago. Please choose another time."
	msgNotEnoughSlots  = "😕 Sorry, that option is not available any more. Let's start again."
	msgBookingFailed   = "😕 We could not complete your booking. Please try again."
	msgCancelled       = "Your booking has been cancelled. Nothing was reserved."
	msgEditDetails     = "No problem, let's go through your details again."
	msgBadDate         = "❌ I could not read that date. Please use the format DD-MM-YYYY, for example 15-01-2027."
	msgPastDate        = "❌ That date is in the past. Please send a date from today onwards (DD-MM-YYYY)."
	msgBadName         = "❌ Please send a name between 3 and 60 characters."
	msgBadEmail        = "❌ That does not look like a valid email address. Please send it like name@example.com."
	msgBadAddress      = "❌ Please send the address of the job, up to 120 characters."
	msgBadDescription  = "❌ Please describe the job in up to 300 characters."
	menuOptionOther    = "4️⃣ Another date"
	menuOptionMainMenu = "5️⃣ Main menu"
)

// Prompts renders every message the assistant sends.
type Prompts struct {
	BusinessName  string
	CalculatorURL string
	HorizonDays   int
	LookaheadDays int
}

func (p Prompts) Menu() string {
	return fmt.Sprintf("👋 Welcome to %s! How can we help you?\n\n"+
		"1️⃣ Book an appointment\n"+
		"2️⃣ About us\n"+
		"3️⃣ Budget calculator\n\n"+
		"Send 0 or \"menu\" at any time to come back here.", p.BusinessName)
}

func (p Prompts) Info() string {
	return fmt.Sprintf("ℹ️ %s carries out home renovations: kitchens, bathrooms, flooring and full refurbishments.\n"+
		"We visit you to assess the job and give you a free, no-obligation quote.\n\n"+
		"Send 1 from the main menu to book a visit.", p.BusinessName)
}

func (p Prompts) Calculator() string {
	return "🧮 Get an instant estimate with our budget calculator:\n" + p.CalculatorURL
}

// SlotMenu lists the offered slots followed by the fixed options.
func (p Prompts) SlotMenu(slots []models.Slot) string {
	var b strings.Builder
	if len(slots) == 0 {
		fmt.Fprintf(&b, "😕 There are no free appointments in the next %d days.\n\n", p.LookaheadDays)
	} else {
		b.WriteString("📅 These are the next available appointments:\n\n")
		for i, s := range slots {
			fmt.Fprintf(&b, "%d) %s\n", i+1, s.Describe())
		}
		b.WriteString("\n")
	}
	b.WriteString(menuOptionOther + "\n")
	b.WriteString(menuOptionMainMenu)
	return b.String()
}

func (p Prompts) DatePrompt() string {
	return fmt.Sprintf("📆 Which date suits you? Send it as DD-MM-YYYY, optionally followed by \"morning\" or \"afternoon\".\n"+
		"Example: 15-01-2027 morning. We book up to %d days ahead.", p.HorizonDays)
}

func (p Prompts) FarDate() string {
	return fmt.Sprintf("❌ We can only book up to %d days ahead. Please send an earlier date (DD-MM-YYYY).", p.HorizonDays)
}

func (p Prompts) Chosen(slot models.Slot) string {
	return "✅ You picked " + slot.Describe() + "."
}

func (p Prompts) NamePrompt() string {
	return "👤 What is your full name?"
}

func (p Prompts) EmailPrompt() string {
	return "📧 What is your email address?"
}

func (p Prompts) AddressPrompt() string {
	return "🏠 What is the address of the job?"
}

func (p Prompts) DescriptionPrompt() string {
	return "📝 Briefly describe the work you need (up to 300 characters)."
}

// Summary asks the user to confirm everything collected.
func (p Prompts) Summary(when string, data models.PartialBooking) string {
	return fmt.Sprintf("Please check your booking:\n\n"+
		"📅 %s\n"+
		"👤 %s\n"+
		"📧 %s\n"+
		"🏠 %s\n"+
		"📝 %s\n\n"+
		"1️⃣ Confirm\n"+
		"2️⃣ Change my details\n"+
		"3️⃣ Cancel", when, data.Name, data.Email, data.Address, data.Description)
}

func (p Prompts) Confirmed(b *models.Booking) string {
	return fmt.Sprintf("🎉 Your appointment is booked for %s. "+
		"We have sent the details to %s. Thank you for choosing %s!",
		models.Slot{Start: b.Start, End: b.End}.Describe(), b.Email, p.BusinessName)
}
