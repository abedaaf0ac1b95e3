package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"content-calendar/models"
)

var emailTemplates = template.Must(template.New("published").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2>Your post is live on {{.Platform}}</h2>
  <p>Your post scheduled for {{.Scheduled}} was published{{if .PublishedAt}} at {{.PublishedAt}}{{end}}.</p>
  <blockquote style="border-left: 3px solid #cbd2d9; padding-left: 12px;">{{.Excerpt}}</blockquote>
  {{if .PublishedPostID}}<p>Platform post id: {{.PublishedPostID}}</p>{{end}}
  <p>{{.AppName}}</p>
</body>
</html>`))

func init() {
	template.Must(emailTemplates.New("failed").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2>We could not publish your post on {{.Platform}}</h2>
  <p>Your post scheduled for {{.Scheduled}} failed to publish.</p>
  <blockquote style="border-left: 3px solid #cbd2d9; padding-left: 12px;">{{.Excerpt}}</blockquote>
  <p><strong>Reason:</strong> {{.Reason}}</p>
  <p>Open your calendar to edit the post and schedule it again.</p>
  <p>{{.AppName}}</p>
</body>
</html>`))
}

type emailData struct {
	AppName         string
	Platform        string
	Scheduled       string
	PublishedAt     string
	PublishedPostID string
	Excerpt         string
	Reason          string
}

const excerptLength = 140

func excerpt(content string) string {
	content = strings.TrimSpace(content)
	if r := []rune(content); len(r) > excerptLength {
		return string(r[:excerptLength]) + "…"
	}
	return content
}

func platformName(p models.Platform) string {
	if p == "" {
		return "your platform"
	}
	s := string(p)
	return strings.ToUpper(s[:1]) + s[1:]
}

func newEmailData(appName string, post models.Post, reason string) emailData {
	data := emailData{
		AppName:         appName,
		Platform:        platformName(post.Platform),
		Scheduled:       post.ScheduledTime.UTC().Format(time.RFC1123),
		PublishedPostID: post.PublishedPostID,
		Excerpt:         excerpt(post.Content),
		Reason:          reason,
	}
	if post.PublishedAt != nil {
		data.PublishedAt = post.PublishedAt.UTC().Format(time.RFC1123)
	}
	return data
}

func renderEmail(event Event, data emailData) (string, string, error) {
	var subject string
	switch event {
	case EventPublished:
		subject = fmt.Sprintf("Your %s post was published", data.Platform)
	case EventFailed:
		subject = fmt.Sprintf("Your %s post failed to publish", data.Platform)
	default:
		return "", "", fmt.Errorf("unknown notification event %q", event)
	}

	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, string(event), data); err != nil {
		return "", "", fmt.Errorf("rendering %s email: %w", event, err)
	}
	return subject, buf.String(), nil
}

func chatText(event Event, post models.Post, reason string) string {
	switch event {
	case EventPublished:
		return fmt.Sprintf(":white_check_mark: Post published on %s\n> %s", platformName(post.Platform), excerpt(post.Content))
	default:
		return fmt.Sprintf(":x: Post failed on %s\n> %s\nReason: %s", platformName(post.Platform), excerpt(post.Content), reason)
	}
}
