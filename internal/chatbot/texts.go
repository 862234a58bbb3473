package chatbot

import (
	"fmt"

	"heimdall/internal/domain"
	"heimdall/internal/templatefmt"
)

const commandList = "Available commands:\n" +
	"/status - Check your subscription status\n" +
	"/unsubscribe - Stop receiving alerts\n" +
	"/help - Show this help message"

const (
	textWelcome = "🎉 <b>Welcome to Heimdall Monitoring!</b>\n\n" +
		"You are now subscribed to server alerts. You will receive notifications when:\n" +
		"• Server resources (CPU, Memory, Disk) exceed thresholds\n" +
		"• Monitored services go down\n" +
		"• Issues are resolved\n\n" + commandList

	textWelcomePending = "🎉 <b>Welcome to Heimdall Monitoring!</b>\n\n" +
		"Your subscription request has been received. An administrator must approve it " +
		"before you start receiving server alerts.\n\n" + commandList

	textAlreadySubscribed = "You are already subscribed to Heimdall alerts! 👍"
	textUnsubscribed      = "You have been unsubscribed from Heimdall alerts. Use /start to subscribe again."
	textNotSubscribed     = "You are not currently subscribed."
	textStatusMissing     = "❌ You are not subscribed. Use /start to subscribe."
	textUnknownCommand    = "Unknown command. Use /help to see available commands."
	textTryLater          = "Sorry, your request could not be processed right now. Please try again later."

	textHelp = "<b>Heimdall Monitoring Bot Help</b>\n\n" +
		"Available commands:\n" +
		"/start or /subscribe - Subscribe to alerts\n" +
		"/status - Check your subscription status\n" +
		"/unsubscribe or /stop - Unsubscribe from alerts\n" +
		"/help - Show this help message\n\n" +
		"<i>Heimdall monitors your servers and sends alerts when issues are detected.</i>"

	textApproved    = "✅ Your subscription to Heimdall alerts has been approved. You will now receive server alerts."
	textDisapproved = "⏸ Your subscription to Heimdall alerts has been put on hold by an administrator. You will not receive alerts until it is approved again."
	textRemoved     = "🚫 You have been removed from Heimdall alerts by an administrator. Use /start to request a new subscription."
)

// statusText renders the /status reply for a known subscriber.
func statusText(sub domain.Subscriber, total int) string {
	state := "✅ <b>Status:</b> Active"
	if !sub.Approved {
		state = "⏳ <b>Status:</b> Pending approval"
	}
	return fmt.Sprintf("<b>Your Subscription Status</b>\n\n%s\n📅 <b>Subscribed since:</b> %s\n👥 <b>Total subscribers:</b> %d",
		state, templatefmt.FormatTime(sub.SubscribedAt), total)
}
