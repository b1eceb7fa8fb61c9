package relay

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kre8/diagram-relay/internal/ws"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: a generate frame is acknowledged with a fresh id exactly when its
// message has non-blank content, and rejected with one error otherwise.
func TestEngineAcceptanceProperty(t *testing.T) {
	repo := setupRepo(t)
	e, rec := setupEngine(t, repo, Config{PollInterval: time.Hour, Timeout: time.Hour})
	seen := make(map[int64]bool)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	message := gen.OneGenOf(
		gen.AlphaString(),
		gen.IntRange(0, 5).Map(func(n int) string {
			return strings.Repeat(" \t", n)
		}),
	)

	properties.Property("acknowledged iff message is not blank", prop.ForAll(
		func(m string) bool {
			client := ws.NewClient(nil)
			e.HandleMessage(client, []byte(fmt.Sprintf(`{"type":"generate","message":%q}`, m)))

			var msg *ws.Message
			select {
			case msg = <-rec.ch(client):
			case <-time.After(time.Second):
				return false
			}

			if strings.TrimSpace(m) == "" {
				return msg.Type == ws.MessageTypeError && msg.Message == "message is required"
			}
			if msg.Type != ws.MessageTypeMessage || msg.RequestID == 0 || seen[msg.RequestID] {
				return false
			}
			seen[msg.RequestID] = true
			return true
		},
		message,
	))

	properties.TestingRun(t)
}
