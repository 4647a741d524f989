// internal/services/notifier.go
package services

import (
	"log"

	"studio-verifier/internal/models"

	"github.com/go-resty/resty/v2"
)

// Notifier POSTs every recorded Confirmation to a configured callback URL
// so the studio's dashboard (or any other consumer) hears about verdicts
// without polling. Delivery is best-effort: a failed POST is logged and
// never fails or retries the match itself.
type Notifier struct {
	client      *resty.Client
	callbackURL string
}

func NewNotifier(callbackURL string) *Notifier {
	return &Notifier{
		client:      resty.New(),
		callbackURL: callbackURL,
	}
}

// ConfirmationRecorded implements matcher.ConfirmationSink.
func (n *Notifier) ConfirmationRecorded(conf *models.Confirmation) {
	go n.deliver(conf)
}

func (n *Notifier) deliver(conf *models.Confirmation) {
	resp, err := n.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(conf).
		Post(n.callbackURL)

	if err != nil {
		log.Printf("ERROR: Confirmation callback for claim %s failed: %v", conf.ClaimID, err)
		return
	}
	if resp.IsError() {
		log.Printf("WARN: Confirmation callback for claim %s returned status %s", conf.ClaimID, resp.Status())
		return
	}
	log.Printf("INFO: Confirmation for claim %s delivered to callback (matched=%t).", conf.ClaimID, conf.Matched)
}
