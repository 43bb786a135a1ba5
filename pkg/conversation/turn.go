package conversation

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Wire roles expected by the generative language API.
const (
	WireRoleUser  = "user"
	WireRoleModel = "model"
)

// WireRole maps a turn role to the role string used by the model API.
func (r Role) WireRole() string {
	if r == RoleAssistant {
		return WireRoleModel
	}
	return WireRoleUser
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type AnnotationKind string

const AnnotationContactCard AnnotationKind = "contact-card"

// Annotation asks the renderer to attach supplemental content to a turn.
type Annotation struct {
	Kind AnnotationKind `json:"kind"`
}

// ContactCard returns a fresh contact-card annotation.
func ContactCard() *Annotation {
	return &Annotation{Kind: AnnotationContactCard}
}

// Turn is one message of the transcript.
type Turn struct {
	Role       Role        `json:"role"`
	Text       string      `json:"text"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// HasContactCard reports whether the turn carries the contact-card annotation.
func (t Turn) HasContactCard() bool {
	return t.Annotation != nil && t.Annotation.Kind == AnnotationContactCard
}

// Session is the ordered transcript of a single visitor.
type Session struct {
	Turns []Turn `json:"turns"`
}

func (s Session) Len() int {
	return len(s.Turns)
}

func (s Session) IsEmpty() bool {
	return len(s.Turns) == 0
}

// Last returns the most recent turn, if any.
func (s Session) Last() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}
