package messaging

import (
	"fmt"
	"strings"
)

const PlanCaption = "📋 Your Personalized Plan"

func WelcomeMessage(clientName, portalLink string) string {
	return fmt.Sprintf("Hi %s! 🎉\n\nYour personalized plan is ready!\n\nAccess your portal here:\n%s\n\nLet's crush those goals together! 💪", clientName, portalLink)
}

// PlanFileName is "{Client_Name}_Plan.pdf" with whitespace runs collapsed.
func PlanFileName(clientName string) string {
	name := strings.Join(strings.Fields(clientName), "_")
	if name == "" {
		name = "Client"
	}
	return name + "_Plan.pdf"
}
