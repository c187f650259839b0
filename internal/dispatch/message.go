package dispatch

import (
	"fmt"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

// ComposeMessage builds the human readable message for an outcome. The same
// string goes to the notification channel and to the log.
func ComposeMessage(mapping *core.WebhookMapping, state *core.RevisionState, event *core.Event, outcome core.Outcome, period *core.QueuePeriod) string {
	subject := event.Tag
	if subject == "" {
		subject = mapping.RevOrHead(state.Revision)
	}

	var message string
	switch {
	case event.Forced():
		message = "Forced build trigger for " + subject
	case event.Tag != "":
		message = "Tag " + subject
	default:
		message = subject
	}

	message = fmt.Sprintf("%s by %s in %s branch of %s", message, event.Actor, mapping.Branch, mapping.RepoURL)

	switch outcome {
	case core.OutcomeNotMapped:
		message += ", which is not mapped yet. Please map it."
	case core.OutcomeBuild:
		message = fmt.Sprintf("%s, which will trigger build in project %s package %s (%s)",
			message, mapping.Project, mapping.Package, mapping.PackageURL())
	case core.OutcomeSkipped:
		message += ", which was already handled; skipping"
	case core.OutcomeDelayed:
		if period != nil {
			message = fmt.Sprintf("%s, which will be delayed by %s", message, period)
			if period.Comment != "" {
				message += "\n" + period.Comment
			}
		}
	case core.OutcomeNone:
	}
	return message
}
