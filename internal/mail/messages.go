package mail

import "fmt"

// VerificationMessage asks a new account holder to confirm their address.
func VerificationMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Bevestig je registratie bij Pluisje.ai",
		Body: fmt.Sprintf("Welkom bij Pluisje.ai!\n\n"+
			"Klik op de onderstaande link om je e-mailadres te bevestigen:\n%s", link),
	}
}

// ResetMessage carries a password reset link.
func ResetMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Wachtwoord opnieuw instellen bij Pluisje.ai",
		Body: fmt.Sprintf("Je hebt gevraagd om je wachtwoord opnieuw in te stellen.\n\n"+
			"Klik binnen een uur op de onderstaande link:\n%s\n\n"+
			"Heb je dit niet aangevraagd? Dan kun je deze mail negeren.", link),
	}
}

// TestMessage checks that SMTP delivery works.
func TestMessage(to string) Message {
	return Message{
		To:      to,
		Subject: "Testmail van Pluisje.ai",
		Body:    "Deze mail bevestigt dat SMTP correct werkt!",
	}
}
