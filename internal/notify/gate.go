package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/models"
)

var fragmentTmpl = template.Must(template.New("listing").Parse(strings.TrimSpace(`
<h2><a href="https://{{.Host}}{{.Link}}">{{.Name}}</a></h2>
<p>{{.Area}} {{.FloorPlan}} {{.Rent}} <a href="https://google.com/maps/place/{{.Address}}">{{.Address}}</a></p>
`)))

type fragmentData struct {
	Host      string
	Link      string
	Name      string
	Area      string
	FloorPlan string
	Rent      string
	Address   string
}

// Gate decides which listings still need a notification. Identities of
// everything ever emailed live in a newline-delimited log file, sorted
// lexicographically; the log is only advanced after a successful send, so
// a failed send leaves every unsent listing eligible for the next run
// (at-least-once delivery).
type Gate struct {
	logPath  string
	host     string
	subject  string
	notifier Notifier
	log      *logger.Logger
}

// NewGate creates a dedup gate over the given notification log file.
func NewGate(logPath, host, subject string, notifier Notifier, log *logger.Logger) *Gate {
	return &Gate{
		logPath:  logPath,
		host:     host,
		subject:  subject,
		notifier: notifier,
		log:      log,
	}
}

// MaybeSend queues every listing whose identity is not yet in the log,
// sends the digest, and commits the updated log on success. An empty queue
// counts as a trivially successful send. Returns the number of newly
// queued listings.
func (g *Gate) MaybeSend(ctx context.Context, listings []models.Listing) (int, error) {
	entries, err := g.readLog()
	if err != nil {
		return 0, err
	}
	sent := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		sent[entry] = struct{}{}
	}

	var fragments []string
	for i := range listings {
		identity, err := listings[i].Identity()
		if err != nil {
			g.log.Warn("skipping listing without identity", map[string]interface{}{
				"link":  listings[i].Link,
				"error": err.Error(),
			})
			continue
		}
		if _, ok := sent[identity]; ok {
			g.log.Debug("email already sent", map[string]interface{}{"identity": identity})
			continue
		}
		fragment, err := g.render(&listings[i])
		if err != nil {
			return 0, err
		}
		fragments = append(fragments, fragment)
		entries = append(entries, identity)
		sent[identity] = struct{}{}
	}

	if len(fragments) > 0 {
		banner := fmt.Sprintf("<strong>いい物件が%d件見つかったけん！</strong>", len(fragments))
		body := append([]string{banner}, fragments...)
		if err := g.notifier.Send(ctx, g.subject, body); err != nil {
			// Log not committed: these listings stay eligible next run.
			return len(fragments), fmt.Errorf("send digest: %w", err)
		}
	}

	if err := g.writeLog(entries); err != nil {
		return len(fragments), err
	}
	return len(fragments), nil
}

func (g *Gate) render(listing *models.Listing) (string, error) {
	var b strings.Builder
	data := fragmentData{
		Host:      g.host,
		Link:      listing.Link,
		Name:      listing.Name,
		Area:      listing.Area.Text,
		FloorPlan: listing.FloorPlan,
		Rent:      listing.Rent.Text,
		Address:   listing.Address,
	}
	if err := fragmentTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render listing %s: %w", listing.Link, err)
	}
	return b.String(), nil
}

func (g *Gate) readLog() ([]string, error) {
	data, err := os.ReadFile(g.logPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read notification log %s: %w", g.logPath, err)
	}
	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

func (g *Gate) writeLog(entries []string) error {
	sort.Strings(entries)
	data := strings.Join(entries, "\n")
	if err := os.WriteFile(g.logPath, []byte(data), 0o640); err != nil {
		return fmt.Errorf("write notification log %s: %w", g.logPath, err)
	}
	return nil
}
