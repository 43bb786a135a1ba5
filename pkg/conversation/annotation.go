package conversation

import "regexp"

var (
	contactKeywordPattern = regexp.MustCompile(`(?i)\b(phone|call|e-?mail|agent|human|person|speak|contact)`)
	phoneNumberPattern    = regexp.MustCompile(`\(?\b\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

// Classify returns the contact-card annotation when text shows contact intent,
// nil otherwise.
func Classify(text string) *Annotation {
	if contactKeywordPattern.MatchString(text) || phoneNumberPattern.MatchString(text) {
		return ContactCard()
	}
	return nil
}
