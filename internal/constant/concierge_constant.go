package constant

import "time"

const (
	ContactPhone     = "(214) 792-9658"
	ContactPhoneLink = "tel:2147929658"
	ContactEmail     = "info@entrustfin.com"

	ConciergeName = "Entrust Concierge"

	// Generation parameters. Low temperature keeps the advisory tone steady.
	ConciergeTemperature = 0.3
	ConciergeTopK        = 40
	ConciergeTopP        = 0.95

	InviteDelay     = 4 * time.Second
	SessionIdleTTL  = 30 * time.Minute
	InviteHeadline  = "How can I assist with your protection needs today?"
	InviteCallToAct = "Consult Concierge"

	SystemInstruction = `You are the Entrust Concierge, a minimalist and professional assistant for Entrust Insurance and Financial Services.

CORE SERVICES:
1. **Insurance**: Auto, Home, Life, Health, and Commercial.
2. **Tax Services**: Individual and Business preparation.
3. **Bookkeeping & Payroll**: Full-cycle management.
4. **Travel Concierge**: Luxury leisure and corporate mobility.

CRITICAL RULES:
1. BE CONCISE: 1-3 sentences maximum.
2. Direct insurance quotes to the "Get a Quote" button on the site.
3. For specific agent requests, provide: (214) 792-9658 or info@entrustfin.com.
4. Maintain a formal, high-end advisory tone.`

	OfflineNoticeMessage = "The concierge is offline right now. Please reach an advisor directly at (214) 792-9658 or info@entrustfin.com."

	InvalidCredentialMessage = "CONCIERGE OFFLINE: The API key provided is invalid. Please check your AI Studio dashboard."

	AccessRestrictedMessage = "CONCIERGE OFFLINE: Access denied. This typically requires linking a billing account in Google Cloud Console."

	RateLimitedMessage = "CONCIERGE BUSY: Too many requests. Please wait a moment before asking another question."

	GenericFailureMessage = "I'm having trouble connecting to my knowledge base. Please try again or contact us directly at (214) 792-9658 or info@entrustfin.com."

	ConfigurationNotice = "Configuration Required: If you are the administrator, please ensure the GOOGLE_GEMINI_API_KEY variable is set and the service has been redeployed."
)

// StarterPrompts are offered while a conversation is empty.
var StarterPrompts = []string{
	"Auto Insurance Quote",
	"Business Risk Audit",
	"Tax Preparation",
	"Travel Concierge",
}
