package entities

// Outcome describes what was done with an update.
type Outcome struct {
	Kind OutcomeKind
	Note string
}

type OutcomeKind string

const (
	// OutcomeKindNoop means nothing was done with an update
	OutcomeKindNoop OutcomeKind = "noop"

	// OutcomeKindGreeted means a /start command was answered with a greeting
	OutcomeKindGreeted OutcomeKind = "greeted"

	// OutcomeKindSaved means a new message was stored
	OutcomeKindSaved OutcomeKind = "saved"

	// OutcomeKindEditNotified means the owner was told about an edit and the new text was stored
	OutcomeKindEditNotified OutcomeKind = "edit_notified"

	// OutcomeKindEditSaved means the new text of an edited message was stored without notifying
	OutcomeKindEditSaved OutcomeKind = "edit_saved"

	// OutcomeKindDeleteNotified means the owner was told about deleted messages
	OutcomeKindDeleteNotified OutcomeKind = "delete_notified"

	// OutcomeKindDeleteSkipped means deleted messages were seen but nobody had to be notified
	OutcomeKindDeleteSkipped OutcomeKind = "delete_skipped"
)
