package gateway

import (
	"strings"

	"github.com/concierge/gateway/internal/domain/session"
)

// Intent keyword fallback used when the engine returns a reply without a
// directive. The original concierge recognized French and English phrasing;
// matching is case-insensitive on the raw contact message.
var transferPhrases = []string{
	"parler à quelqu'un",
	"parler a quelqu'un",
	"parler à un humain",
	"parler a un humain",
	"un conseiller",
	"speak to someone",
	"speak to a human",
	"talk to a human",
	"real person",
	"transfer me",
}

var closingPhrases = []string{
	"au revoir",
	"bonne journée",
	"bonne journee",
	"goodbye",
	"good bye",
	"bye bye",
	"that's all",
	"c'est tout",
	"merci c'est bon",
}

// DetectOutcome derives the turn outcome from the engine directive when one
// is present, otherwise from the contact's message.
func DetectOutcome(message string, directive Directive) session.TurnOutcome {
	switch directive {
	case DirectiveTransfer:
		return session.OutcomeTransfer
	case DirectiveEnd:
		return session.OutcomeEnd
	}

	lower := strings.ToLower(message)
	for _, phrase := range transferPhrases {
		if strings.Contains(lower, phrase) {
			return session.OutcomeTransfer
		}
	}
	for _, phrase := range closingPhrases {
		if strings.Contains(lower, phrase) {
			return session.OutcomeEnd
		}
	}
	return session.OutcomeContinue
}
