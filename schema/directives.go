package schema

// PhaseName is the NAME carried by a <<<PHASE:NAME>>> marker line.
type PhaseName string

const (
	// MarkerStatus announces the planning status line.
	MarkerStatus PhaseName = "STATUS"
	// MarkerReasonPlan announces the reasoning channel.
	MarkerReasonPlan PhaseName = "REASON_PLAN"
	// MarkerHTML announces that the document follows.
	MarkerHTML PhaseName = "HTML"
	// MarkerSummary announces the post-document summary.
	MarkerSummary PhaseName = "SUMMARY"
	// MarkerError announces an upstream failure.
	MarkerError PhaseName = "ERROR"
)

// DirectiveKind identifies the classification of a reassembled line.
type DirectiveKind string

const (
	// DirectivePhaseMarker is a <<<PHASE:NAME>>> line.
	DirectivePhaseMarker DirectiveKind = "phase_marker"
	// DirectiveThink is a THINK:/REASON: narration line.
	DirectiveThink DirectiveKind = "think"
	// DirectivePlan is a PLAN: narration line.
	DirectivePlan DirectiveKind = "plan"
	// DirectiveStatus is a STATUS: line.
	DirectiveStatus DirectiveKind = "status"
	// DirectiveDone is a DONE: line.
	DirectiveDone DirectiveKind = "done"
	// DirectiveNext is a NEXT: suggestions line.
	DirectiveNext DirectiveKind = "next"
	// DirectiveError is an ERROR: line.
	DirectiveError DirectiveKind = "error"
	// DirectiveOpaque is any other non-blank line.
	DirectiveOpaque DirectiveKind = "opaque"
)

// Directive is a classified narration line. Phase is set for phase markers and
// Suggestions for NEXT lines; Text carries the remaining payload.
type Directive struct {
	Kind        DirectiveKind
	Phase       PhaseName
	Text        string
	Suggestions []string
}

// TokenKind identifies a decoder output.
type TokenKind string

const (
	// TokenDirective carries a classified line.
	TokenDirective TokenKind = "directive"
	// TokenDocumentOpen marks the start of the document span.
	TokenDocumentOpen TokenKind = "document_open"
	// TokenDocumentDelta carries new document bytes.
	TokenDocumentDelta TokenKind = "document_delta"
	// TokenDocumentClose marks the end of the document span.
	TokenDocumentClose TokenKind = "document_close"
)

// Token is one ordered output of the stream decoder.
type Token struct {
	Kind      TokenKind
	Directive Directive
	// Delta is the document text added by this token.
	Delta string
	// Document is the accumulated document after this token.
	Document string
	// Presentable reports whether a <body tag has been observed.
	Presentable bool
}
